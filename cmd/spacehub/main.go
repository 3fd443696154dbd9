package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	inventoryapp "github.com/spacehub/core/internal/application/inventory"
	"github.com/spacehub/core/internal/application/mutation"
	"github.com/spacehub/core/internal/infrastructure/cache"
	"github.com/spacehub/core/internal/infrastructure/config"
	"github.com/spacehub/core/internal/infrastructure/event"
	"github.com/spacehub/core/internal/infrastructure/logger"
	"github.com/spacehub/core/internal/infrastructure/remote"
	"github.com/spacehub/core/internal/infrastructure/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting SpaceHub client core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("api_base_url", cfg.API.BaseURL),
	)

	ctx := context.Background()

	// Initialize telemetry providers
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}
	defer func() {
		if err := logsProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logs provider", zap.Error(err))
		}
	}()

	// Bridge zap to the OTEL Collector when logs export is enabled
	if logsProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logsProvider, zapcore.InfoLevel)
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	// Start continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: cfg.App.Name,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Span profiles need both tracing and the profiler running
	if tracerProvider.IsEnabled() && profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	// Scope the session: every log line and context read below carries the
	// session id.
	sessionID := uuid.New().String()
	ctx, log = logger.WithSessionID(ctx, log, sessionID)

	// Core metric set (cache activity, mutations, stock health)
	coreMetrics, err := telemetry.NewCoreMetrics(meterProvider.Meter("spacehub.core"), log)
	if err != nil {
		log.Fatal("Failed to create core metrics", zap.Error(err))
	}

	// Remote collaborator client
	remoteClient, err := remote.NewClient(&remote.Config{
		BaseURL:        cfg.API.BaseURL,
		TimeoutSeconds: int(cfg.API.Timeout / time.Second),
	}, remote.WithClientLogger(log))
	if err != nil {
		log.Fatal("Failed to create remote client", zap.Error(err))
	}

	// Resource cache store, the session-scoped source of truth for reads
	store := cache.NewStore(remoteClient,
		cache.WithLogger(log),
		cache.WithMetrics(coreMetrics),
		cache.WithFreshFor(cfg.Cache.FreshFor),
		cache.WithFetchTimeout(cfg.Cache.FetchTimeout),
	)

	// Optimistic mutator over the store
	mutator := mutation.NewMutator(store,
		mutation.WithLogger(log),
		mutation.WithMetrics(coreMetrics),
	)

	// Event bus and stock alert handler
	eventBus := event.NewInMemoryEventBus(log)
	alertHandler := inventoryapp.NewStockAlertHandler(log)
	eventBus.Subscribe(alertHandler)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	log.Info("Event handlers registered",
		zap.Strings("stock_alert_events", alertHandler.EventTypes()),
	)

	// Inventory application service
	inventoryService := inventoryapp.NewService(store, remoteClient, mutator,
		inventoryapp.WithLogger(log),
		inventoryapp.WithMetrics(coreMetrics),
		inventoryapp.WithEventPublisher(eventBus),
		inventoryapp.WithDefaultThreshold(cfg.Inventory.LowStockThreshold),
	)

	// The active space is per session; without one there is nothing to watch.
	spaceID := activeSpace(log)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if spaceID != uuid.Nil {
		spaceCtx, _ := logger.WithSpaceID(watchCtx, log, spaceID)
		go watchStock(spaceCtx, inventoryService, cfg.Inventory.WatchInterval)
	}

	log.Info("SpaceHub client core started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down SpaceHub client core...")
	cancelWatch()

	hits, misses := store.Stats()
	log.Info("Session cache statistics",
		zap.Int64("hits", hits),
		zap.Int64("misses", misses),
		zap.Int("entries", store.Len()),
	)
}

// activeSpace resolves the session's space from the environment.
func activeSpace(log *zap.Logger) uuid.UUID {
	raw := os.Getenv("SPACEHUB_SPACE_ID")
	if raw == "" {
		log.Warn("SPACEHUB_SPACE_ID not set, stock watch disabled")
		return uuid.Nil
	}
	spaceID, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("SPACEHUB_SPACE_ID is not a valid UUID, stock watch disabled", zap.Error(err))
		return uuid.Nil
	}
	return spaceID
}

// watchStock periodically re-derives stock levels for the active space so
// low-stock and stock-out events keep flowing while the session is open. The
// space and the enriched logger both travel on the context.
func watchStock(ctx context.Context, svc *inventoryapp.Service, interval time.Duration) {
	log := logger.FromContext(ctx)
	spaceID := logger.GetSpaceID(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			levels, err := svc.StockOverview(ctx, spaceID)
			if err != nil {
				log.Warn("Stock overview pass failed", zap.Error(err))
				continue
			}
			log.Debug("Stock overview pass completed",
				zap.Int("items", len(levels)),
			)
		}
	}
}
