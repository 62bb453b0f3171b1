package watch

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL           = "http://localhost:8080"
	defaultDBPath           = "./data/watchguard.db"
	defaultUserAgent        = "AsertivaWatch/1.0"
	defaultRateLimitSeconds = 5
	defaultMinContentChars  = 50
	defaultSourceCountry    = "México"
	defaultKeepSnapshots    = 10
)

// Settings are watcher-wide defaults from the sites file.
type Settings struct {
	APIURL                  string `yaml:"api_url"`
	DBPath                  string `yaml:"db_path"`
	UserAgent               string `yaml:"user_agent"`
	DefaultRateLimitSeconds int    `yaml:"default_rate_limit_seconds"`
	KeepSnapshots           int    `yaml:"keep_snapshots"`
}

// SiteConfig describes one monitored page.
type SiteConfig struct {
	Name             string `yaml:"name"`
	URL              string `yaml:"url"`
	FetchMode        string `yaml:"fetch_mode"`
	ContentSelector  string `yaml:"content_selector"`
	MinContentChars  int    `yaml:"min_content_chars"`
	SourceName       string `yaml:"source_name"`
	SourceCountry    string `yaml:"source_country"`
	RateLimitSeconds int    `yaml:"rate_limit_seconds"`
}

type Config struct {
	Settings Settings     `yaml:"settings"`
	Sites    []SiteConfig `yaml:"sites"`
}

// ${VAR} or ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig reads and validates a sites.yaml file. Environment
// variable references in values are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites config %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse sites config %s: %w", path, err)
	}

	applySettingsDefaults(&cfg.Settings)

	if len(cfg.Sites) == 0 {
		return nil, fmt.Errorf("sites config %s defines no sites", path)
	}

	for i := range cfg.Sites {
		if err := applySiteDefaults(&cfg.Sites[i], cfg.Settings); err != nil {
			return nil, fmt.Errorf("sites config %s: site %d: %w", path, i, err)
		}
	}

	return &cfg, nil
}

func expandEnvVars(raw string) string {
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, exists := os.LookupEnv(groups[1]); exists {
			return value
		}
		return groups[2]
	})
}

func applySettingsDefaults(settings *Settings) {
	if strings.TrimSpace(settings.APIURL) == "" {
		settings.APIURL = defaultAPIURL
	}
	if strings.TrimSpace(settings.DBPath) == "" {
		settings.DBPath = defaultDBPath
	}
	if strings.TrimSpace(settings.UserAgent) == "" {
		settings.UserAgent = defaultUserAgent
	}
	if settings.DefaultRateLimitSeconds <= 0 {
		settings.DefaultRateLimitSeconds = defaultRateLimitSeconds
	}
	if settings.KeepSnapshots <= 0 {
		settings.KeepSnapshots = defaultKeepSnapshots
	}
}

func applySiteDefaults(site *SiteConfig, settings Settings) error {
	site.Name = strings.TrimSpace(site.Name)
	site.URL = strings.TrimSpace(site.URL)
	if site.Name == "" {
		return fmt.Errorf("name is required")
	}
	if site.URL == "" {
		return fmt.Errorf("url is required")
	}

	mode := strings.TrimSpace(strings.ToLower(site.FetchMode))
	switch mode {
	case "":
		mode = "http"
	case "http":
	case "browser", "pdf":
		return fmt.Errorf("fetch_mode %q is not supported by this watcher", mode)
	default:
		return fmt.Errorf("fetch_mode %q is unknown", mode)
	}
	site.FetchMode = mode

	if site.MinContentChars <= 0 {
		site.MinContentChars = defaultMinContentChars
	}
	if strings.TrimSpace(site.SourceCountry) == "" {
		site.SourceCountry = defaultSourceCountry
	}
	if site.RateLimitSeconds <= 0 {
		site.RateLimitSeconds = settings.DefaultRateLimitSeconds
	}

	return nil
}
