// Package main wires together the arch-scraper service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/api"
	"github.com/lioriz/arch-scraper/internal/clock/system"
	"github.com/lioriz/arch-scraper/internal/config"
	"github.com/lioriz/arch-scraper/internal/controller"
	exportgcs "github.com/lioriz/arch-scraper/internal/export/gcs"
	exportlocal "github.com/lioriz/arch-scraper/internal/export/local"
	"github.com/lioriz/arch-scraper/internal/extractor"
	"github.com/lioriz/arch-scraper/internal/llm/openai"
	"github.com/lioriz/arch-scraper/internal/logging"
	"github.com/lioriz/arch-scraper/internal/metrics"
	"github.com/lioriz/arch-scraper/internal/policy/politeness"
	pubsubpublisher "github.com/lioriz/arch-scraper/internal/publisher/pubsub"
	"github.com/lioriz/arch-scraper/internal/renderer"
	"github.com/lioriz/arch-scraper/internal/scraper"
	"github.com/lioriz/arch-scraper/internal/sources"
	"github.com/lioriz/arch-scraper/internal/storage/memory"
	"github.com/lioriz/arch-scraper/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	registry := sources.NewRegistry(cfg.Sources.Path, logger.Named("sources"))

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	extract, err := buildExtractor(cfg, clock, logger)
	if err != nil {
		logger.Fatal("extractor init failed", zap.Error(err))
	}

	exporter, err := buildExporter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("exporter init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	render := renderer.New(renderer.Config{
		UserAgent:  cfg.Renderer.UserAgent,
		NavTimeout: cfg.NavTimeout(),
		SettleWait: cfg.SettleWait(),
	}, logger.Named("renderer"))

	limiter := politeness.New(politeness.Config{DefaultRPS: cfg.Scraper.PolitenessRPS})

	jobController := controller.New(
		registry,
		render,
		extract,
		store,
		limiter,
		publisher,
		exporter,
		clock,
		controller.Config{
			Topic:        cfg.PubSub.TopicName,
			ExportPrefix: cfg.Export.Prefix,
		},
		logger.Named("controller"),
	)

	apiServer := api.NewServer(store, registry, jobController, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.BatchStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory batch store")
		return memory.NewBatchStore(), func() {}, nil
	}
	store, err := postgres.NewBatchStore(ctx, postgres.BatchStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildExtractor(cfg config.Config, clock scraper.Clock, logger *zap.Logger) (scraper.Extractor, error) {
	if !cfg.AI.Enabled {
		return extractor.NewHeuristic(clock, logger.Named("extractor")), nil
	}
	client, err := openai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		return nil, err
	}
	fetcher := extractor.NewCollyFetcher(cfg.Renderer.UserAgent, cfg.NavTimeout())
	return extractor.NewAIAssisted(client, fetcher, clock, cfg.AI.MaxPages, logger.Named("extractor")), nil
}

func buildExporter(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.BlobStore, error) {
	switch cfg.Export.Provider {
	case "", "none":
		return nil, nil
	case "local":
		logger.Info("using local export store", zap.String("dir", cfg.Export.LocalDir))
		return exportlocal.New(exportlocal.Config{BaseDir: cfg.Export.LocalDir})
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		logger.Info("using gcs export store", zap.String("bucket", cfg.Export.GCSBucket))
		return exportgcs.New(client, exportgcs.Config{Bucket: cfg.Export.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown export provider: %s", cfg.Export.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	logger.Info("batch notifications enabled", zap.String("topic", cfg.PubSub.TopicName))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	return pubsubpublisher.New(client), closeFn, nil
}
