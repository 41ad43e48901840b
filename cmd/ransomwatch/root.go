package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/adapter/artifact"
	"github.com/hive-corporation/ransomwatch/internal/adapter/httpclient"
	"github.com/hive-corporation/ransomwatch/internal/adapter/notifier"
	"github.com/hive-corporation/ransomwatch/internal/adapter/parser"
	"github.com/hive-corporation/ransomwatch/internal/adapter/repository"
	"github.com/hive-corporation/ransomwatch/internal/adapter/scraper"
	"github.com/hive-corporation/ransomwatch/internal/config"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/core/service"
	"github.com/hive-corporation/ransomwatch/internal/logging"
)

const version = "1.0.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	dbPath   string
	logLevel string
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ransomwatch",
		Short:         "Check IPs against CISA #StopRansomware advisories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides RANSOMWATCH_DB_PATH)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newCheckCommand(a),
		newUpdateCommand(a),
		newStatsCommand(a),
		newListGroupsCommand(a),
		newExportCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	// The CLI talks to people; keep the logger quiet unless asked
	level := cfg.LogLevel
	if a.logLevel == "" && level == "info" {
		level = "warn"
	}
	logger, err := logging.New(level, cfg.LogPretty)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// openIndex opens the configured index and migrates its schema.
func (a *app) openIndex(ctx context.Context) (ports.AdvisoryIndex, error) {
	switch a.cfg.DBDriver {
	case config.DriverPostgres:
		idx, err := repository.OpenPostgres(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres index: %w", err)
		}
		return idx, nil
	default:
		idx, err := repository.OpenSQLite(ctx, a.cfg.DBPath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite index: %w", err)
		}
		return idx, nil
	}
}

// newIngester wires the update pipeline over one shared polite fetcher.
func (a *app) newIngester(index ports.AdvisoryIndex, progress ports.ProgressFunc) *service.Ingester {
	cfg := a.cfg

	client := httpclient.NewResilientClient(cfg.RequestTimeout, cfg.HTTP, a.logger)
	fetcher := httpclient.NewPoliteFetcher(client,
		httpclient.WithDelay(cfg.RequestDelay),
		httpclient.WithUserAgent(cfg.UserAgent),
		httpclient.WithLogger(a.logger),
	)

	discoverer := scraper.NewDiscoverer(fetcher,
		scraper.WithBaseURL(cfg.BaseURL),
		scraper.WithSearchURL(cfg.SearchURL),
		scraper.WithMaxPages(cfg.MaxDiscoveryPages),
		scraper.WithDiscoveryLogger(a.logger),
		scraper.WithProgress(progress),
	)

	opts := []service.IngesterOption{
		service.WithLogger(a.logger),
		service.WithProgress(progress),
	}
	if cfg.SlackEnabled() {
		opts = append(opts, service.WithNotifier(
			notifier.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackMentionTeam),
		))
	}

	return service.NewIngester(
		index,
		discoverer,
		scraper.NewEnricher(fetcher, cfg.BaseURL, a.logger),
		artifact.NewCache(cfg.CacheDir, fetcher, a.logger),
		parser.NewStructuredParser(),
		parser.NewDocumentParser(parser.NewPDFExtractor()),
		opts...,
	)
}
