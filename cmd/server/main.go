package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/polizalink/backend/internal/application/linkage"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/cache"
	"github.com/polizalink/backend/internal/infrastructure/config"
	"github.com/polizalink/backend/internal/infrastructure/logger"
	"github.com/polizalink/backend/internal/infrastructure/persistence"
	"github.com/polizalink/backend/internal/infrastructure/scheduler"
	"github.com/polizalink/backend/internal/infrastructure/telemetry"
	"github.com/polizalink/backend/internal/interfaces/http/handler"
	"github.com/polizalink/backend/internal/interfaces/http/middleware"
	"github.com/polizalink/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting polizalink",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Int("policy_tables", len(cfg.PolicyTables)),
	)

	ctx := context.Background()

	// Tracing
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
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
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Metrics
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	var (
		meter          metric.Meter
		linkageMetrics *telemetry.LinkageMetrics
	)
	if mp.IsEnabled() {
		meter = mp.Meter(cfg.Telemetry.ServiceName)
		linkageMetrics, err = telemetry.NewLinkageMetrics(meter)
		if err != nil {
			log.Warn("Linkage metrics disabled", zap.Error(err))
			linkageMetrics = nil
		}
	}

	// Database with GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.DefaultDBTracingConfig()
		dbTracing.Enabled = true
		dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		dbTracing.DBName = cfg.Database.DBName
		if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Result cache
	resultCache, err := cache.NewResultCacheFactory(cfg.Cache, cfg.Redis,
		cache.WithFactoryLogger(log.Named("cache")),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateCache()
	if err != nil {
		log.Fatal("Failed to create result cache", zap.Error(err))
	}
	defer func() {
		if err := resultCache.Close(); err != nil {
			log.Error("Error closing result cache", zap.Error(err))
		}
	}()

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	if tiered, ok := resultCache.(*cache.TieredResultCache); ok {
		if err := tiered.StartSync(syncCtx); err != nil {
			log.Warn("Cache invalidation sync unavailable", zap.Error(err))
		}
	}

	// Linkage engine
	source := persistence.NewGormRecordSource(db.DB)
	scorer := matching.NewScorer(
		matching.WithThreshold(cfg.Matching.SimilarityThreshold),
		matching.WithContainmentScore(cfg.Matching.ContainmentScore),
		matching.WithMinTokenLength(cfg.Matching.MinTokenLength),
	)
	generations := linkage.NewGenerations()
	linkageService := linkage.NewService(source, source.Contacts(), resultCache, cfg.PolicyTables,
		linkage.WithLogger(log.Named("linkage")),
		linkage.WithGenerations(generations),
		linkage.WithMetrics(linkageMetrics),
		linkage.WithScorer(scorer),
		linkage.WithRecordCounter(source),
		linkage.WithTTLs(linkage.TTLs{
			TableListing:  cfg.Cache.TableListingTTL,
			Dataset:       cfg.Cache.DatasetTTL,
			Report:        cfg.Cache.ReportTTL,
			ContactLookup: cfg.Cache.ContactLookupTTL,
		}),
	)
	enricher := linkage.NewEnricher(linkageService,
		linkage.WithBatchSize(cfg.Matching.EnrichmentBatchSize),
		linkage.WithEnricherLogger(log.Named("enrichment")),
	)
	recordService := linkage.NewPolicyRecordService(source, resultCache, cfg.PolicyTables,
		linkage.WithRecordLogger(log.Named("records")),
		linkage.WithRecordGenerations(generations),
	)

	// Periodic promotion
	var (
		jobs    *scheduler.Scheduler
		trigger *scheduler.IntervalTrigger
	)
	if cfg.Scheduler.PromotionEnabled {
		jobs = scheduler.NewScheduler(scheduler.Config{
			MaxConcurrentJobs: 1,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, scheduler.WithLogger(log.Named("scheduler")))
		jobs.Register(scheduler.JobKindPromoteContacts,
			scheduler.NewPromotionExecutor(linkageService, log.Named("promotion")))
		if err := jobs.Start(ctx); err != nil {
			log.Fatal("Failed to start job scheduler", zap.Error(err))
		}
		trigger = scheduler.NewIntervalTrigger(jobs, scheduler.JobKindPromoteContacts, cfg.Scheduler.PromotionInterval,
			scheduler.WithTriggerLogger(log.Named("scheduler")),
		)
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start promotion trigger", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins

	engine := router.NewEngine(router.EngineConfig{
		Logger: log,
		Meter:  meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		CORS:           corsConfig,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	writeLimiter := middleware.NewRateLimiter(cfg.HTTP.WriteRateLimit, cfg.HTTP.WriteRateWindow)
	defer writeLimiter.Stop()

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db).
		WithStats("database", func() (any, error) { return db.Stats() }).
		WithStats("cache", func() (any, error) { return cacheStats(resultCache), nil })
	if jobs != nil {
		systemHandler.WithStats("promotion_job", func() (any, error) {
			last, _ := jobs.LastRun(scheduler.JobKindPromoteContacts)
			return last, nil
		})
	}

	router.Mount(engine,
		handler.NewLinkageHandler(linkageService, enricher, recordService),
		systemHandler,
		middleware.RateLimit(writeLimiter),
	)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping promotion trigger", zap.Error(err))
		}
	}
	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping job scheduler", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// cacheStats returns the hit counters of caches that keep them
func cacheStats(c shared.ResultCache) any {
	switch typed := c.(type) {
	case *cache.TieredResultCache:
		return typed.Stats()
	case *cache.InMemoryResultCache:
		return typed.Stats()
	default:
		return gin.H{"backend": "redis"}
	}
}
