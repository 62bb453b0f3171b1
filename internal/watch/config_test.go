package watch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSitesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sites file: %v", err)
	}
	return path
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("WATCH_TEST_API", "http://api.internal:9000")

	path := writeSitesFile(t, `
settings:
  api_url: ${WATCH_TEST_API}
  db_path: ${WATCH_TEST_DB:-./data/test.db}
sites:
  - name: CNBV
    url: https://www.gob.mx/cnbv
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Settings.APIURL != "http://api.internal:9000" {
		t.Fatalf("api_url = %q, env var was not expanded", cfg.Settings.APIURL)
	}
	if cfg.Settings.DBPath != "./data/test.db" {
		t.Fatalf("db_path = %q, default fallback was not applied", cfg.Settings.DBPath)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeSitesFile(t, `
sites:
  - name: Banxico
    url: https://www.banxico.org.mx/disposiciones
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	site := cfg.Sites[0]
	if site.FetchMode != "http" {
		t.Fatalf("fetch_mode = %q, want http", site.FetchMode)
	}
	if site.MinContentChars != 50 {
		t.Fatalf("min_content_chars = %d, want 50", site.MinContentChars)
	}
	if site.SourceCountry != "México" {
		t.Fatalf("source_country = %q, want México", site.SourceCountry)
	}
	if site.RateLimitSeconds != 5 {
		t.Fatalf("rate_limit_seconds = %d, want 5", site.RateLimitSeconds)
	}
	if cfg.Settings.KeepSnapshots != 10 {
		t.Fatalf("keep_snapshots = %d, want 10", cfg.Settings.KeepSnapshots)
	}
}

func TestLoadConfigRejectsUnsupportedFetchMode(t *testing.T) {
	for _, mode := range []string{"browser", "pdf"} {
		path := writeSitesFile(t, `
sites:
  - name: DOF
    url: https://dof.gob.mx
    fetch_mode: `+mode+`
`)
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("fetch_mode %q was accepted", mode)
		}
	}
}

func TestLoadConfigRejectsEmptySites(t *testing.T) {
	path := writeSitesFile(t, "settings:\n  api_url: http://localhost:8080\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("config without sites was accepted")
	}
}

func TestLoadConfigRejectsSiteWithoutURL(t *testing.T) {
	path := writeSitesFile(t, `
sites:
  - name: missing-url
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("site without url was accepted")
	}
}
