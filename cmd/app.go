package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"intelliscale/app/handler"
	"intelliscale/internal/jobs"
	"intelliscale/internal/service"
	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/config"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
	mysqlstore "intelliscale/pkg/store/mysql"
	redisstore "intelliscale/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient

	// Providers
	registry interfaces.ContainerRegistry
	metrics  interfaces.MetricsSource

	// Service layer
	policyService    *service.PolicyService
	loadTestService  *service.LoadTestService
	containerService *service.ContainerService

	// Handler layer
	policyHandler     *handler.PolicyHandler
	autoscalerHandler *handler.AutoScalerHandler
	loadTestHandler   *handler.LoadTestHandler
	containerHandler  *handler.ContainerHandler
	healthHandler     *handler.HealthHandler

	// Monitoring
	monitoringCollector *monitoring.Collector

	// Auto-scaler
	autoscalerMgr *autoscaler.Manager

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Background task cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Database", app.initDatabase},
		{"Redis", app.initRedis},
		{"Providers", app.initProviders},
		{"Service Layer", app.initServices},
		{"Auto-scaler", app.initAutoScaler},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Mark load tests left running by a previous process. With Redis other
	// instances may be driving them, so only the stale-test reaper touches them.
	if app.redisClient == nil {
		recovered, err := app.loadTestService.RecoverInterrupted(app.ctx)
		if err != nil {
			logger.ErrorCtx(app.ctx, "Failed to recover interrupted load tests: %v", err)
		} else if recovered > 0 {
			logger.WarnCtx(app.ctx, "Marked %d interrupted load tests as failed", recovered)
		}
	}

	// 2. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager, jobs: %v", app.jobsManager.Jobs())
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 3. Start AutoScaler
	if app.autoscalerMgr != nil {
		if err := app.autoscalerMgr.Start(app.ctx); err != nil {
			logger.ErrorCtx(app.ctx, "Failed to start autoscaler: %v", err)
		} else {
			logger.InfoCtx(app.ctx, "Autoscaler started successfully")
		}
	}

	// 4. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop HTTP server (stop accepting new requests)
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 2. Stop AutoScaler, waits for a running pass
	if app.autoscalerMgr != nil && app.autoscalerMgr.IsRunning() {
		logger.InfoCtx(app.ctx, "Stopping autoscaler...")
		if err := app.autoscalerMgr.Stop(); err != nil {
			logger.WarnCtx(app.ctx, "Autoscaler stop error: %v", err)
		}
	}

	// 3. Cancel running load tests, their records end as cancelled
	if app.loadTestService != nil {
		logger.InfoCtx(app.ctx, "Cancelling running load tests...")
		if err := app.loadTestService.Shutdown(shutdownCtx); err != nil {
			logger.WarnCtx(app.ctx, "Load tests did not stop in time: %v", err)
		}
	}

	// 4. Cancel all background tasks
	logger.InfoCtx(app.ctx, "Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 5. Wait for all background tasks to complete
	logger.InfoCtx(app.ctx, "Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 6. Execute all cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
