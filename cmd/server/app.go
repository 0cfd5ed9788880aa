package main

import (
	"context"
	"fmt"
	"io"
	"time"

	appsync "github.com/erp/kksync/internal/application/integration"
	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/auth"
	"github.com/erp/kksync/internal/infrastructure/cache"
	"github.com/erp/kksync/internal/infrastructure/config"
	"github.com/erp/kksync/internal/infrastructure/ecommerce"
	"github.com/erp/kksync/internal/infrastructure/erp"
	"github.com/erp/kksync/internal/infrastructure/event"
	"github.com/erp/kksync/internal/infrastructure/logger"
	"github.com/erp/kksync/internal/infrastructure/persistence"
	"github.com/erp/kksync/internal/infrastructure/scheduler"
	"github.com/erp/kksync/internal/infrastructure/storage"
	"github.com/erp/kksync/internal/infrastructure/telemetry"
	"github.com/erp/kksync/internal/interfaces/http/handler"
	"github.com/erp/kksync/internal/interfaces/http/middleware"
	"github.com/erp/kksync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// app holds the wired services and the background jobs that outlive a
// request
type app struct {
	engine    *gin.Engine
	sync      *appsync.SyncService
	control   *appsync.ProcessControl
	scheduler *scheduler.Scheduler
	trigger   *scheduler.IntervalTrigger
	lease     integration.RunLease
	log       *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, db *persistence.Database, provider *telemetry.Provider, log *zap.Logger) (*app, error) {
	// Staging repositories
	products := persistence.NewGormProductStagingRepository(db.DB)
	prices := persistence.NewGormPriceStagingRepository(db.DB)
	inventory := persistence.NewGormInventoryStagingRepository(db.DB)
	companies := persistence.NewGormCompanyStagingRepository(db.DB)
	contacts := persistence.NewGormContactStagingRepository(db.DB)
	writer := persistence.NewGormStagingWriter(db.DB)
	runs := persistence.NewGormSyncRunRepository(db.DB)
	mappings := persistence.NewGormAttributeMappingRepository(db.DB)

	// External systems
	source, err := erp.NewKineticClient(&erp.KineticConfig{
		URL:                cfg.Kinetic.URL,
		Company:            cfg.Kinetic.Company,
		APIKey:             cfg.Kinetic.APIKey,
		License:            cfg.Kinetic.License,
		Username:           cfg.Kinetic.Username,
		Password:           cfg.Kinetic.Password,
		ClientCert:         cfg.Kinetic.ClientCert,
		ClientKey:          cfg.Kinetic.ClientKey,
		InsecureSkipVerify: cfg.Kinetic.InsecureSkipVerify,
		Timeout:            cfg.Kinetic.Timeout,
		ProcessedFunction:  cfg.Kinetic.ProcessedFunction,
	}, log.Named("kinetic"))
	if err != nil {
		return nil, fmt.Errorf("kinetic client: %w", err)
	}

	commerce, err := ecommerce.NewCommerceClient(&ecommerce.CommerceConfig{
		BaseURL:           cfg.Commerce.BaseURL,
		ConsumerKey:       cfg.Commerce.ConsumerKey,
		ConsumerSecret:    cfg.Commerce.ConsumerSecret,
		AccessToken:       cfg.Commerce.AccessToken,
		AccessTokenSecret: cfg.Commerce.AccessTokenSecret,
		Timeout:           cfg.Commerce.Timeout,
		RateLimit:         cfg.Commerce.RateLimit,
		RateBurst:         cfg.Commerce.RateBurst,
	}, ecommerce.WithLogger(log.Named("commerce")))
	if err != nil {
		return nil, fmt.Errorf("commerce client: %w", err)
	}

	lease, err := cache.NewRunLeaseFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateLease(ctx)
	if err != nil {
		return nil, fmt.Errorf("run lease: %w", err)
	}

	metrics, err := telemetry.NewSyncMetrics(provider.Meter("kksync.sync"))
	if err != nil {
		return nil, fmt.Errorf("sync metrics: %w", err)
	}

	fields, err := appsync.LoadRequiredFields()
	if err != nil {
		return nil, fmt.Errorf("required fields: %w", err)
	}

	control := appsync.NewProcessControl(runs, log,
		appsync.WithRunLease(lease, cfg.Sync.LeaseTTL),
		appsync.WithStaleRunTTL(cfg.Sync.StaleRunTTL),
		appsync.WithSyncMetrics(metrics),
	)

	ingestOpts := []appsync.IngestionOption{appsync.WithSourceResources(cfg.Kinetic.Resources)}
	if cfg.Storage.ArchiveEnabled {
		archive, err := storage.NewS3ExtractArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("extract archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("extract archive bucket: %w", err)
		}
		ingestOpts = append(ingestOpts, appsync.WithExtractArchive(archive))
	}
	ingestion := appsync.NewIngestionService(source, appsync.StagingStores{
		Products:  products,
		Prices:    prices,
		Inventory: inventory,
		Companies: companies,
		Contacts:  contacts,
	}, mappings, commerce, fields, control, log, ingestOpts...)

	// Forward pipelines
	concurrency := cfg.Sync.Concurrency
	transformer := appsync.NewTransformer(commerce, log)
	pipelines := []appsync.Pipeline{
		appsync.NewStagingPipeline[integration.ProductMaster](integration.EntityProduct, products,
			appsync.NewProductEngine(commerce, transformer, mappings, prices, writer, concurrency, log)),
		appsync.NewStagingPipeline[integration.ProductPrice](integration.EntityPrice, prices,
			appsync.NewPriceEngine(commerce, log)),
		appsync.NewStagingPipeline[integration.ProductInventory](integration.EntityInventory, inventory,
			appsync.NewInventoryEngine(commerce, log)),
		appsync.NewStagingPipeline[integration.Company](integration.EntityCompany, companies,
			appsync.NewCompanyEngine(commerce, contacts, writer, writer, fields, concurrency, log)),
		appsync.NewStagingPipeline[integration.Contact](integration.EntityContact, contacts,
			appsync.NewContactEngine(commerce, companies, writer, fields, concurrency, log)),
	}
	syncSvc := appsync.NewSyncService(cfg.TaskDefinitions(), pipelines, writer, control, ingestion, metrics, log)

	// Event relay and actions
	registry := event.NewActionRegistry(event.NewWebhookInvoker(cfg.Relay.Webhooks, cfg.Relay.Timeout, log), log)
	registry.Register(appsync.ActionShipmentUpdated, appsync.NewShipmentAction(commerce, log).Handle)
	relay := appsync.NewRelayService(registry, metrics, log)

	a := &app{
		engine:  newEngine(cfg, provider, log),
		sync:    syncSvc,
		control: control,
		lease:   lease,
		log:     log,
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(scheduler.Config{
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			QueueSize:         cfg.Scheduler.QueueSize,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, scheduler.ExecutorFunc(a.runJob), log)
		if err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
		a.scheduler = sched
		trigger, err := scheduler.NewIntervalTrigger(scheduler.TriggerConfig{
			Intervals:     taskIntervals(cfg),
			SweepInterval: cfg.Sync.SweepInterval,
			CheckInterval: cfg.Scheduler.CheckInterval,
		}, sched, control, log)
		if err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
		a.trigger = trigger
	}

	middleware.SetupValidator()
	router.API{
		Sync:      handler.NewSyncHandler(syncSvc, control),
		Events:    handler.NewEventHandler(relay, registry),
		Health:    handler.NewHealthHandler(db),
		Auth:      middleware.JWTAuthMiddleware(auth.NewJWTService(cfg.JWT)),
		EventAuth: middleware.SharedSecret(cfg.Relay.SharedSecret, log),
	}.Mount(a.engine)

	return a, nil
}

// newEngine builds the gin engine with the request middleware chain
func newEngine(cfg *config.Config, provider *telemetry.Provider, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     provider.IsEnabled(),
		}),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(provider.Meter("kksync.http"), log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.HTTP.RateLimit > 0 {
		engine.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)))
	}
	return engine
}

// taskIntervals lists the scheduled tasks. Tasks without an interval only
// run on demand.
func taskIntervals(cfg *config.Config) map[string]time.Duration {
	intervals := make(map[string]time.Duration, len(cfg.Sync.Tasks))
	for name, task := range cfg.Sync.Tasks {
		if task.Interval > 0 {
			intervals[name] = task.Interval
		}
	}
	return intervals
}

// runJob executes a scheduled task. A response of 500 or more fails the
// job so the scheduler can retry it.
func (a *app) runJob(ctx context.Context, job *scheduler.Job) error {
	result, err := a.sync.Run(ctx, job.Task)
	if err != nil {
		return err
	}
	if result.StatusCode >= 500 {
		return fmt.Errorf("task %s answered %d", job.Task, result.StatusCode)
	}
	return nil
}

// start reconciles runs orphaned by a previous process and starts the
// scheduler
func (a *app) start(ctx context.Context) error {
	if n, err := a.control.ReconcileStale(ctx); err != nil {
		a.log.Warn("Stale run reconciliation failed", zap.Error(err))
	} else if n > 0 {
		a.log.Info("Reconciled stale runs", zap.Int("count", n))
	}

	if a.scheduler == nil {
		a.log.Info("Scheduler disabled, tasks run on demand only")
		return nil
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := a.trigger.Start(ctx); err != nil {
		return fmt.Errorf("start trigger: %w", err)
	}
	return nil
}

func (a *app) stop(ctx context.Context) {
	if a.trigger != nil {
		if err := a.trigger.Stop(ctx); err != nil {
			a.log.Error("Error stopping trigger", zap.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	if closer, ok := a.lease.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.Error("Error closing run lease", zap.Error(err))
		}
	}
}
