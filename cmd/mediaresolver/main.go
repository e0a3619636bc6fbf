// Package main wires together the media resolver service.
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

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"mediaresolver/internal/admission"
	"mediaresolver/internal/api"
	"mediaresolver/internal/cache"
	"mediaresolver/internal/canonical"
	"mediaresolver/internal/capture"
	"mediaresolver/internal/clock/system"
	"mediaresolver/internal/config"
	"mediaresolver/internal/credentials"
	"mediaresolver/internal/id/uuid"
	"mediaresolver/internal/keys"
	"mediaresolver/internal/logging"
	"mediaresolver/internal/metrics"
	"mediaresolver/internal/orchestrator"
	memorypublisher "mediaresolver/internal/publisher/memory"
	pubsubpublisher "mediaresolver/internal/publisher/pubsub"
	"mediaresolver/internal/resolver"
	"mediaresolver/internal/scrape"
	"mediaresolver/internal/stats"
	"mediaresolver/internal/tasks"
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
	clk := system.New()
	idGen := uuid.New()
	runtime := config.NewRuntime(cfg)

	resultCache := buildCache(ctx, cfg, runtime, clk, logger)
	pool := credentials.NewPool(buildCredentialStore(ctx, cfg, logger), clk, idGen, logger.Named("credentials"))
	keyStore := buildKeyStore(ctx, cfg, logger)

	admit := admission.NewController(
		runtime,
		keyStore,
		admission.NewFixedWindow(clk),
		admission.NewBlocklist(cfg.Admission.ExtraBlocklist),
		logger.Named("admission"),
	)

	registry := scrape.NewRegistry()
	authRequired := toPlatformSet(cfg.Scrape.AuthRequired)
	credentialed := toPlatformSet(cfg.Scrape.Credentialed)
	for _, platform := range resolver.Platforms() {
		registry.Register(platform, scrape.NewOpenGraph(scrape.OpenGraphConfig{
			UserAgent:          cfg.Scrape.UserAgent,
			RequestTimeout:     time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
			QPS:                cfg.Scrape.QPS,
			AcceptsCredentials: credentialed[platform],
			RequiresAuth:       authRequired[platform],
		}, logger.Named("scrape").With(zap.String("platform", string(platform)))))
	}

	publisher, stopPublisher := buildPublisher(ctx, cfg, logger)
	defer stopPublisher()

	statsRec := stats.NewRecorder(clk)
	runner := tasks.NewRunner(
		cfg.Tasks.MaxInFlight,
		time.Duration(cfg.Tasks.TimeoutSeconds)*time.Second,
		logger.Named("tasks"),
	)

	orch := orchestrator.New(orchestrator.Deps{
		Admitter:       admit,
		Canonical:      canonical.New(logger.Named("canonical")),
		Scrapers:       registry,
		Cache:          resultCache,
		Pool:           pool,
		Keys:           keyStore,
		Stats:          statsRec,
		Settings:       runtime,
		Tasks:          runner,
		Publisher:      publisher,
		Capture:        buildCaptureStore(ctx, cfg, logger),
		Classifier:     scrape.NewHeuristicClassifier(cfg.Credentials.ExtraAuthPhrases, cfg.Credentials.ExtraRatePhrases),
		Clock:          clk,
		Logger:         logger.Named("orchestrator"),
		Cooldown:       cfg.Cooldown(),
		ResolveTimeout: cfg.ResolveTimeout(),
		CapturePrefix:  cfg.Capture.Prefix,
		Topic:          cfg.PubSub.TopicName,
	})

	apiServer := api.NewServer(orch, resultCache, pool, statsRec, runtime, cfg.Auth.AdminKey, logger.Named("api"))
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
	runner.Wait()
	logger.Info("shutdown complete")
}

func buildCache(
	ctx context.Context,
	cfg config.Config,
	runtime *config.Runtime,
	clk resolver.Clock,
	logger *zap.Logger,
) resolver.ResultCache {
	switch cfg.Cache.Backend {
	case "postgres":
		pg, err := cache.NewPostgres(ctx, cache.PostgresConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.Cache.Table,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		}, runtime, clk, logger.Named("cache"))
		if err != nil {
			// The cache tier is best-effort: run degraded instead of dying.
			logger.Warn("postgres cache unavailable, running without cache", zap.Error(err))
			return cache.NewNoop()
		}
		return pg
	case "none":
		return cache.NewNoop()
	default:
		return cache.NewMemory(runtime, clk)
	}
}

func buildCredentialStore(ctx context.Context, cfg config.Config, logger *zap.Logger) credentials.Store {
	if cfg.Credentials.Backend == "postgres" {
		store, err := credentials.NewPostgresStore(ctx, credentials.PostgresConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		})
		if err == nil {
			return store
		}
		logger.Warn("postgres credential store unavailable, using in-memory store", zap.Error(err))
	}
	return credentials.NewMemoryStore()
}

func buildKeyStore(ctx context.Context, cfg config.Config, logger *zap.Logger) resolver.KeyStore {
	if cfg.DB.DSN != "" {
		store, err := keys.NewPostgresStore(ctx, cfg.DB.DSN)
		if err == nil {
			return store
		}
		logger.Warn("postgres key store unavailable, all callers are anonymous", zap.Error(err))
	}
	return keys.NewMemoryStore(nil)
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (resolver.Publisher, func()) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), func() {}
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Warn("pubsub unavailable, events stay in-process", zap.Error(err))
		return memorypublisher.New(), func() {}
	}
	pub := pubsubpublisher.New(client)
	return pub, func() {
		pub.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
}

func buildCaptureStore(ctx context.Context, cfg config.Config, logger *zap.Logger) resolver.CaptureStore {
	if cfg.Capture.Backend == "gcs" {
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			logger.Warn("gcs unavailable, captures stay in-process", zap.Error(err))
			return capture.NewMemoryStore()
		}
		store, err := capture.NewGCSStore(client, capture.GCSConfig{Bucket: cfg.Capture.GCSBucket})
		if err != nil {
			logger.Warn("gcs capture store init failed", zap.Error(err))
			return capture.NewMemoryStore()
		}
		return store
	}
	return capture.NewMemoryStore()
}

func toPlatformSet(names []string) map[resolver.Platform]bool {
	set := make(map[resolver.Platform]bool, len(names))
	for _, name := range names {
		set[resolver.Platform(name)] = true
	}
	return set
}
