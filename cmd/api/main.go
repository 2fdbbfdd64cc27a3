package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/packfinderz-catalog/api/controllers"
	"github.com/angelmondragon/packfinderz-catalog/api/routes"
	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/internal/docstore"
	"github.com/angelmondragon/packfinderz-catalog/internal/imports"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	"github.com/angelmondragon/packfinderz-catalog/pkg/db"
	"github.com/angelmondragon/packfinderz-catalog/pkg/instance"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
	"github.com/angelmondragon/packfinderz-catalog/pkg/metrics"
	"github.com/angelmondragon/packfinderz-catalog/pkg/migrate"
	"github.com/angelmondragon/packfinderz-catalog/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-catalog/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "catalog-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "catalog-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []controllers.ReadinessCheck

	store, closeStore, storeCheck, err := openCatalogStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap catalog store", err)
		os.Exit(1)
	}
	defer closeStore()
	checks = append(checks, storeCheck)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()
	checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})

	var events imports.EventPublisher
	if cfg.FeatureFlags.PublishEvents {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher, err := pubsub.NewEventPublisher(pubsubClient.ImportPublisher())
		if err != nil {
			logg.Error(ctx, "failed to create event publisher", err)
			os.Exit(1)
		}
		events = publisher
		checks = append(checks, controllers.ReadinessCheck{Name: "pubsub", Pinger: pubsubClient})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orchestrator, err := imports.NewOrchestrator(imports.OrchestratorParams{
		Store:        store,
		Engine:       imports.EngineOptions(cfg.Import),
		Metrics:      metrics.NewImportMetrics(registry),
		Logger:       logg,
		FailureLimit: cfg.Import.FailureDetailLimit,
	})
	if err != nil {
		logg.Error(ctx, "failed to create import orchestrator", err)
		os.Exit(1)
	}

	sessions, err := imports.NewRedisSessionStore(redisClient, cfg.Import.SessionTTL)
	if err != nil {
		logg.Error(ctx, "failed to create session store", err)
		os.Exit(1)
	}

	importService, err := imports.NewService(imports.ServiceParams{
		Store:        store,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Events:       events,
		Logger:       logg,
		RunLockTTL:   cfg.Import.RunLockTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create import service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"catalog":  cfg.Catalog.Backend,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:   cfg,
			Logger:   logg,
			Imports:  importService,
			Gatherer: registry,
			Checks:   checks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "graceful shutdown failed", err)
	}

	// running imports keep going after the listener closes
	importService.Wait()
	logg.Info(logCtx, "api server stopped")
}

func openCatalogStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (catalog.Store, func(), controllers.ReadinessCheck, error) {
	if cfg.Catalog.UsesDocStore() {
		client, err := docstore.NewClient(cfg.DocStore, nil, logg)
		if err != nil {
			return nil, nil, controllers.ReadinessCheck{}, err
		}
		store, err := docstore.NewStore(client, docstore.CollectionsFrom(cfg.DocStore))
		if err != nil {
			return nil, nil, controllers.ReadinessCheck{}, err
		}
		return store, func() {}, controllers.ReadinessCheck{Name: "docstore", Pinger: store}, nil
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, controllers.ReadinessCheck{}, err
	}
	closeDB := func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		closeDB()
		return nil, nil, controllers.ReadinessCheck{}, err
	}
	return catalog.NewRepository(dbClient.DB()), closeDB, controllers.ReadinessCheck{Name: "db", Pinger: dbClient}, nil
}
