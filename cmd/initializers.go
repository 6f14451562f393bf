package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"intelliscale/app/handler"
	"intelliscale/app/router"
	"intelliscale/internal/service"
	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/config"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/metricsource"
	"intelliscale/pkg/monitoring"
	"intelliscale/pkg/notification"
	"intelliscale/pkg/registry"
	mysqlstore "intelliscale/pkg/store/mysql"
	redisstore "intelliscale/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

const notifyTimeout = 15 * time.Second

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.InfoCtx(app.ctx, "Logging system has been closed")
		logger.Sync()
	})
	return nil
}

// initDatabase opens MySQL or SQLite and migrates the schema
func (app *Application) initDatabase() error {
	repo, err := mysqlstore.NewRepository(app.config.Database)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "%s connection has been closed", app.config.Database.Driver)
	})

	logger.InfoCtx(app.ctx, "Database driver: %s", app.config.Database.Driver)
	return nil
}

// initRedis initializes Redis. Without an address the locks, the evaluation
// schedule and the global switch stay in-process.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.InfoCtx(app.ctx, "Redis not configured, running in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initProviders initializes the container registry and metrics source
func (app *Application) initProviders() error {
	reg, err := registry.NewContainerRegistry(app.config, app.mysqlRepo.Container)
	if err != nil {
		return fmt.Errorf("failed to create container registry: %w", err)
	}
	app.registry = reg

	source, err := metricsource.NewMetricsSource(app.config)
	if err != nil {
		return fmt.Errorf("failed to create metrics source: %w", err)
	}
	app.metrics = source

	logger.InfoCtx(app.ctx, "Container registry: %s, metrics source: %s",
		app.config.Providers.Registry, app.config.Providers.Metrics)
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.policyService = service.NewPolicyService(app.mysqlRepo, app.registry, app.config.AutoScaler)
	app.loadTestService = service.NewLoadTestService(app.mysqlRepo.LoadTest, app.registry, app.metrics, app.config.LoadTest)
	app.containerService = service.NewContainerService(app.registry, app.metrics)

	if app.config.Monitoring.Enabled {
		app.monitoringCollector = monitoring.NewCollector(app.registry, app.metrics)
	}

	app.initNotifications()
	return nil
}

// initNotifications pushes scale actions and finished load tests to Feishu
func (app *Application) initNotifications() {
	notifier := notification.NewFeishuNotifier(app.config.Notification.FeishuWebhookURL)
	if !notifier.Enabled() {
		return
	}

	app.policyService.SetScaleHook(func(ctx context.Context, event *interfaces.ScalingEvent) {
		notifyAsync(ctx, "scaling event", func(ctx context.Context) error {
			return notifier.NotifyScaleEvent(ctx, event)
		})
	})
	app.loadTestService.SetFinishHook(func(ctx context.Context, test *interfaces.LoadTest) {
		notifyAsync(ctx, "load test", func(ctx context.Context) error {
			return notifier.NotifyLoadTestFinished(ctx, test)
		})
	})
}

// notifyAsync keeps the webhook off the evaluation and load test paths
func notifyAsync(ctx context.Context, what string, send func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := send(sendCtx); err != nil {
			logger.WarnCtx(sendCtx, "Failed to send %s notification: %v", what, err)
		}
	}()
}

// initAutoScaler initializes the evaluation engine. The engine is always built so
// that evaluate-now and enable work even when the ticker starts disabled.
func (app *Application) initAutoScaler() error {
	autoscalerConfig := &autoscaler.Config{
		Enabled:  app.config.AutoScaler.Enabled,
		Interval: app.config.AutoScaler.Interval,
	}

	app.autoscalerMgr = autoscaler.NewManager(
		autoscalerConfig,
		app.policyService,
		app.registry,
		app.metrics,
		app.redisClient.GetClient(),
	)

	// deleted policies must not leave a schedule behind
	app.policyService.SetDeleteHook(app.autoscalerMgr.ForgetPolicy)

	if !app.autoscalerMgr.IsEnabled() {
		logger.InfoCtx(app.ctx, "AutoScaler starts disabled")
	}
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.policyHandler = handler.NewPolicyHandler(app.policyService, app.autoscalerMgr)
	app.autoscalerHandler = handler.NewAutoScalerHandler(app.autoscalerMgr)
	app.loadTestHandler = handler.NewLoadTestHandler(app.loadTestService)
	app.containerHandler = handler.NewContainerHandler(app.containerService)

	app.healthHandler = handler.NewHealthHandler()
	ds := app.mysqlRepo.GetDatastore()
	app.healthHandler.AddCheck("database", func(ctx context.Context) error {
		return ds.DB(ctx).Exec("SELECT 1").Error
	})
	if client := app.redisClient.GetClient(); client != nil {
		app.healthHandler.AddCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	r := router.NewRouter(router.Handlers{
		Policy:     app.policyHandler,
		AutoScaler: app.autoscalerHandler,
		LoadTest:   app.loadTestHandler,
		Container:  app.containerHandler,
		Health:     app.healthHandler,
	}, app.config.Monitoring.Enabled)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server. No write timeout: metric streams stay open for the whole test.
	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}
