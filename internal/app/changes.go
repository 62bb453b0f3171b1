package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/javiportal/asertiva-monitoring/internal/cli"
	"github.com/javiportal/asertiva-monitoring/internal/config"
	"github.com/javiportal/asertiva-monitoring/internal/db"
	"github.com/javiportal/asertiva-monitoring/internal/logging"
)

func runChanges(args []string) int {
	fs := flag.NewFlagSet("changes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	status := fs.String("status", "", "Filter by status (NEW, FILTERED, VALIDATED, DISCARDED, PUBLISHED, PENDING)")
	source := fs.String("source", "", "Filter by source (wachete, watchguard, manual)")
	limit := fs.Int("limit", 50, "Maximum number of records")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *limit <= 0 || *limit > 500 {
		fmt.Fprintln(os.Stderr, "--limit must be between 1 and 500")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	items, err := pool.ListChanges(ctx, db.ChangeListOptions{
		Status: strings.TrimSpace(strings.ToUpper(*status)),
		Source: strings.TrimSpace(strings.ToLower(*source)),
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list changes: %v\n", err)
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode change %d: %v\n", item.ChangeID, err)
			return 1
		}
	}

	return 0
}
