package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/stoik/phish-catcher/internal/adapters/http"
	"github.com/stoik/phish-catcher/internal/adapters/mail"
	"github.com/stoik/phish-catcher/internal/adapters/mq"
	"github.com/stoik/phish-catcher/internal/adapters/providers"
	"github.com/stoik/phish-catcher/internal/adapters/storage"
	"github.com/stoik/phish-catcher/internal/application"
	"github.com/stoik/phish-catcher/internal/config"
	"github.com/stoik/phish-catcher/internal/domain/detection"
	"github.com/stoik/phish-catcher/internal/metrics"
	"github.com/stoik/phish-catcher/internal/ports"
)

func newRunCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the feeds and mail periodic reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	// Flags override the environment
	flags := cmd.Flags()
	flags.StringVar(&cfg.SuspiciousPath, "suspicious", cfg.SuspiciousPath, "Base keyword/TLD configuration")
	flags.StringVar(&cfg.ExternalPath, "external", cfg.ExternalPath, "Override keyword/TLD configuration")
	flags.StringVar(&cfg.StoreBackend, "alert-store", cfg.StoreBackend, "Alert store backend (file|postgres)")
	flags.StringVar(&cfg.AlertDir, "alert-dir", cfg.AlertDir, "Directory of the file alert store")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	flags.IntVar(&cfg.ScoreWorkers, "workers", cfg.ScoreWorkers, "Concurrent certificate scoring workers")
	flags.DurationVar(&cfg.BatchPollInterval, "batch-interval", cfg.BatchPollInterval, "Newly registered domains poll interval")
	flags.DurationVar(&cfg.MailInterval, "mail-interval", cfg.MailInterval, "Report interval")
	flags.BoolVar(&cfg.ReportRetry, "report-retry", cfg.ReportRetry, "Re-send reports left pending by a failed delivery")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Ops HTTP address, empty to disable")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting phish-catcher", "store", cfg.StoreBackend, "workers", cfg.ScoreWorkers)

	scoringCtx, err := config.LoadScoringContext(cfg.SuspiciousPath, cfg.ExternalPath)
	if err != nil {
		return fmt.Errorf("failed to load scoring context: %w", err)
	}
	logger.Info("scoring context loaded", "keywords", len(scoringCtx.Keywords), "tlds", len(scoringCtx.TLDs))
	scorer := detection.NewScorer(scoringCtx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.New()

	// A nil interface value disables the fan-out
	var publisher ports.AlertPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := mq.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("publishing alerts to kafka", "topic", cfg.KafkaTopic)
	}

	var mailer ports.ReportMailer
	if cfg.MailEnabled() {
		mailer = mail.NewSMTPMailer(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			To:       cfg.MailTo,
		})
	}

	alerter := application.NewAlerter(store, publisher, collector, logger.With("component", "alerter"))
	certWorker := application.NewCertificateFeedWorker(scorer, alerter, cfg.FreeCAMarker, cfg.ScoreWorkers, collector, logger.With("component", "certificates"))
	batchWorker := application.NewBatchDomainWorker(
		providers.NewWhoisDSClient(cfg.NRDBaseURL), scorer, alerter, cfg.BatchPollInterval, collector, logger.With("component", "nrd"),
	)
	dispatcher := application.NewReportDispatcher(store, mailer, cfg.MailInterval, cfg.ReportRetry, collector, logger.With("component", "reports"))
	feed := providers.NewCertstreamClient(cfg.CertstreamURL, logger.With("component", "certstream"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return certWorker.Run(gctx, feed) })
	g.Go(func() error { return batchWorker.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	if cfg.MetricsAddr != "" {
		server := httpadapter.New(scorer, collector, logger.With("component", "http"))
		g.Go(func() error { return server.ListenAndServe(gctx, cfg.MetricsAddr) })
	}

	err = g.Wait()
	logger.Info("phish-catcher stopped")
	return err
}

func openStore(ctx context.Context, cfg config.Config) (ports.AlertStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewFileStore(cfg.AlertDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open alert directory: %w", err)
		}
		return store, nil
	}
}
