package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"intelliscale/pkg/logger"
)

// running load tests get this long to reach cancelled before the process exits
const shutdownTimeout = 30 * time.Second

func main() {
	app := NewApplication()

	if err := app.Initialize(); err != nil {
		logger.FatalCtx(app.ctx, "intelliscale: initialization failed: %v", err)
	}
	if err := app.Start(); err != nil {
		logger.FatalCtx(app.ctx, "intelliscale: startup failed: %v", err)
	}

	logger.InfoCtx(app.ctx, "intelliscale ready: registry=%s metrics=%s autoscaler(enabled=%v, interval=%ds) api=:%d",
		app.config.Providers.Registry, app.config.Providers.Metrics,
		app.autoscalerMgr.IsEnabled(), app.config.AutoScaler.Interval, app.config.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.InfoCtx(app.ctx, "received %v, stopping evaluation engine and load tests", sig)

	if err := app.Shutdown(shutdownTimeout); err != nil {
		logger.ErrorCtx(app.ctx, "intelliscale: shutdown failed: %v", err)
		os.Exit(1)
	}
	logger.InfoCtx(app.ctx, "intelliscale stopped")
}
