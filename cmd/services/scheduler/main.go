package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskflow-engine/taskflow/internal/platform/cache"
	"github.com/taskflow-engine/taskflow/internal/platform/config"
	"github.com/taskflow-engine/taskflow/internal/platform/database"
	"github.com/taskflow-engine/taskflow/internal/platform/di"
	"github.com/taskflow-engine/taskflow/internal/platform/health"
	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/platform/metrics"
	"github.com/taskflow-engine/taskflow/internal/platform/resilience"
	"github.com/taskflow-engine/taskflow/internal/platform/telemetry"
	taskhttp "github.com/taskflow-engine/taskflow/internal/taskengine/adapters/http"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/memory"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/postgres"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/resilient"
	"github.com/taskflow-engine/taskflow/internal/taskengine/dispatcher"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
	"github.com/taskflow-engine/taskflow/internal/taskengine/manager"
)

func main() {
	cfg, err := config.Load("scheduler")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.Logger)
	log.Info("starting scheduler service", "version", cfg.Version, "port", cfg.HTTP.Port, "store_driver", cfg.TaskEngine.StoreDriver)

	telConfig := telemetry.Config{
		ServiceName:    cfg.Service.Name,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	}
	tel, err := telemetry.New(telConfig)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer tel.Close()

	m := metrics.NewMetrics(cfg.Service.Name)

	store, db, err := buildStore(cfg, log)
	if err != nil {
		log.Fatal("failed to build task store", "error", err)
	}

	healthHandler := health.NewHandler(cfg.Service.Name, cfg.Version)
	if db != nil {
		healthHandler.AddCheck("database", health.DatabaseChecker(db.HealthCheck))
	}

	var wake dispatcher.WakeSignal
	if cfg.Redis.Host != "" {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis unavailable, distributed wake signal disabled", "error", err)
		} else if w, err := cache.NewRedisWakeSignal(redisCache, "taskengine.wake"); err != nil {
			log.Warn("redis wake signal unavailable, falling back to in-process signal", "error", err)
		} else {
			wake = w
			defer w.Close()
		}
	}

	container := di.New()
	container.Register(di.ServiceLogger, log)
	container.Register(di.ServiceStore, store)
	container.Register(di.ServiceMetrics, m)
	container.RegisterFactory(di.ServiceManager, func(c *di.Container) (interface{}, error) {
		return manager.New(
			c.MustGet(di.ServiceStore).(repository.Store),
			c.MustGet(di.ServiceLogger).(logger.Logger),
			c.MustGet(di.ServiceMetrics).(*metrics.Metrics),
			manager.Config{
				WorkerID:             hostnameOrDefault(),
				MaxConcurrentTasks:   cfg.TaskEngine.MaxConcurrentTasks,
				PollInterval:         time.Duration(cfg.TaskEngine.PollIntervalMS) * time.Millisecond,
				ActiveUpdateInterval: time.Duration(cfg.TaskEngine.ActiveUpdateIntervalMS) * time.Millisecond,
				ExpireSeconds:        expirySecondsPtr(cfg.TaskEngine.ExpireSeconds),
				Wake:                 wake,
			},
		), nil
	})

	mgr := container.MustGet(di.ServiceManager).(*manager.Manager)

	registerHandlers(mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		log.Fatal("failed to start task manager", "error", err)
	}

	router := mux.NewRouter()
	router.Use(m.HTTPMetricsMiddleware())
	router.Use(logger.HTTPMiddleware(log))
	router.HandleFunc("/healthz", healthHandler.LivenessHandler())
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	router.Handle("/metrics", m.Handler())

	taskhttp.New(mgr, log).RegisterRoutes(router.PathPrefix("/admin").Subrouter())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("http server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}

	cancel()
	if err := mgr.Stop(); err != nil {
		log.Error("manager shutdown error", "error", err)
	}

	log.Info("scheduler service stopped gracefully")
}

// buildStore returns the task store and, when backed by Postgres, the
// underlying *database.DB so main can wire it into the readiness check.
func buildStore(cfg *config.Config, log logger.Logger) (repository.Store, *database.DB, error) {
	switch cfg.TaskEngine.StoreDriver {
	case "memory":
		log.Warn("using in-memory task store; tasks do not survive process restarts")
		return memory.New(), nil, nil
	default:
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		cbConfig := resilience.DefaultCircuitBreakerConfig("taskstore")
		return resilient.New(postgres.New(db), &cbConfig), db, nil
	}
}

func registerHandlers(mgr *manager.Manager) {
	// Application binaries embedding this manager register their own
	// handlers here via mgr.Use(name, handler, opts) before calling
	// mgr.Start. The scheduler binary ships with no built-in task names.
}

func hostnameOrDefault() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "scheduler-worker"
	}
	return host
}

func expirySecondsPtr(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
