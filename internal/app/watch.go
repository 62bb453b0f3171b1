package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/javiportal/asertiva-monitoring/internal/cli"
	"github.com/javiportal/asertiva-monitoring/internal/config"
	"github.com/javiportal/asertiva-monitoring/internal/db"
	"github.com/javiportal/asertiva-monitoring/internal/ingest"
	"github.com/javiportal/asertiva-monitoring/internal/logging"
	"github.com/javiportal/asertiva-monitoring/internal/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	sitesPath := fs.String("sites", "sites.yaml", "Path to the sites configuration file")
	dbPath := fs.String("db", "", "Snapshot database path (overrides sites config)")
	apiURL := fs.String("api", "", "Monitoring API base URL (overrides sites config)")
	direct := fs.Bool("direct", false, "Ingest in-process instead of posting to the API")
	timeout := fs.Duration("timeout", 10*time.Minute, "Sweep timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil && *direct {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	environment, logLevel := "local", "info"
	if cfg != nil {
		environment, logLevel = cfg.Environment, cfg.LogLevel
	}
	logger, err := logging.New(environment, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	sites, err := watch.LoadConfig(strings.TrimSpace(*sitesPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load sites config: %v\n", err)
		return 1
	}
	if path := strings.TrimSpace(*dbPath); path != "" {
		sites.Settings.DBPath = path
	}
	if api := strings.TrimSpace(*apiURL); api != "" {
		sites.Settings.APIURL = api
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := watch.OpenSnapshotStore(sites.Settings.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open snapshot store: %v\n", err)
		return 1
	}
	defer store.Close()

	var submitter watch.Submitter
	if *direct {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("database connection failed")
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()
		submitter = &watch.DirectSubmitter{Service: ingest.NewService(pool, logger, cfg.HashPrefixLen)}
	} else {
		submitter = watch.NewAPIClient(sites.Settings.APIURL, 30*time.Second)
	}

	fetcher := watch.NewFetcher(sites.Settings.UserAgent, 0, 0)
	runner := watch.NewRunner(sites, fetcher, store, submitter, logger)

	report, err := runner.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Watch sweep failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"run_id=%d checked=%d submitted=%d duplicates=%d errors=%d\n",
		report.RunID,
		report.SitesChecked,
		report.ChangesSubmitted,
		report.Duplicates,
		report.Errors,
	)
	if report.Errors > 0 {
		return 1
	}
	return 0
}
