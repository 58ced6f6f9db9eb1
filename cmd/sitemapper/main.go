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
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitegraph/sitemapper/internal/api"
	"github.com/sitegraph/sitemapper/internal/browser"
	"github.com/sitegraph/sitemapper/internal/clock/system"
	"github.com/sitegraph/sitemapper/internal/config"
	"github.com/sitegraph/sitemapper/internal/dispatcher"
	"github.com/sitegraph/sitemapper/internal/engine"
	"github.com/sitegraph/sitemapper/internal/id/uuid"
	"github.com/sitegraph/sitemapper/internal/logging"
	"github.com/sitegraph/sitemapper/internal/metrics"
	"github.com/sitegraph/sitemapper/internal/probe"
	"github.com/sitegraph/sitemapper/internal/progress"
	"github.com/sitegraph/sitemapper/internal/progress/sinks"
	memorypublisher "github.com/sitegraph/sitemapper/internal/publisher/memory"
	pubsubpublisher "github.com/sitegraph/sitemapper/internal/publisher/pubsub"
	queuememory "github.com/sitegraph/sitemapper/internal/queue/memory"
	"github.com/sitegraph/sitemapper/internal/storage/gcs"
	"github.com/sitegraph/sitemapper/internal/storage/local"
	memorystorage "github.com/sitegraph/sitemapper/internal/storage/memory"
	"github.com/sitegraph/sitemapper/internal/storage/postgres"
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
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeJobs, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeJobs()

	artifacts, closeArtifacts, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}
	defer closeArtifacts()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	queue := queuememory.NewQueue(cfg.Crawler.QueueDepth)
	clk := system.New()
	idGen := uuid.New()
	prober := probe.New(probe.Config{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   time.Duration(cfg.Browser.DiscoverTimeoutSeconds) * time.Second,
	})
	detector := probe.NewHeuristic(cfg.Browser.ProbeThreshold)
	browsers := browser.NewFactory(browser.Config{
		PoolSize:          cfg.Browser.PoolSize,
		UserAgent:         cfg.Browser.UserAgent,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
		DiscoverTimeout:   time.Duration(cfg.Browser.DiscoverTimeoutSeconds) * time.Second,
		SettleDelay:       time.Duration(cfg.Browser.SettleDelayMs) * time.Millisecond,
		NavPerSecond:      cfg.Browser.NavPerSecond,
	}, logger.Named("browser"))

	orch := engine.NewOrchestrator(
		jobStore,
		queue,
		browsers,
		artifacts,
		memorystorage.NewBlobStore(),
		prober,
		detector,
		publisher,
		hub,
		idGen,
		clk,
		engine.OrchestratorConfig{
			DefaultMaxPages: cfg.Crawler.MaxPagesDefault,
			PreviewLimit:    cfg.Crawler.PreviewLimit,
			Tiers: engine.TierLimits{
				Free:       cfg.Tiers.Free,
				Pro:        cfg.Tiers.Pro,
				Enterprise: cfg.Tiers.Enterprise,
			},
			CompletionTopic: cfg.PubSub.TopicName,
		},
		logger.Named("engine"),
	)

	dispatch := dispatcher.New(queue, orch, cfg.Crawler.Concurrency, logger)

	apiServer := api.NewServer(orch, jobStore, metrics.Handler(), api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		PreviewTimeout: cfg.PreviewTimeout(),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawler.Concurrency))
		dispatch.Run(ctx)
	}()

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
	queue.Close()
	<-dispatchDone
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildJobStore selects Postgres when a DSN is configured, memory otherwise.
func buildJobStore(ctx context.Context, cfg config.Config) (engine.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.NewJobStore(), func() {}, nil
	}
	store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildArtifactStore(ctx context.Context, cfg config.Config) (engine.ArtifactStore, func(), error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return memorystorage.NewBlobStore(), func() {}, nil
	}
}

// buildPublisher returns a Pub/Sub publisher when a project is configured,
// an in-memory one otherwise.
func buildPublisher(ctx context.Context, cfg config.Config) (engine.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	return pub, func() {
		pub.Close()
		_ = client.Close()
	}, nil
}
