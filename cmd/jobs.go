package main

import (
	"context"
	"fmt"
	"time"

	"intelliscale/internal/jobs"
	"intelliscale/internal/service"
	"intelliscale/pkg/autoscaler"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
	mysqlstore "intelliscale/pkg/store/mysql"
)

const (
	staleLoadTestGrace    = 2 * time.Minute
	staleLoadTestInterval = time.Minute
	eventRetentionRun     = 24 * time.Hour
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// Distributed locks keep replicas from running the same cleanup twice.
	// Without Redis they downgrade to single-instance mode.
	redisClient := app.redisClient.GetClient()

	// Gauges are per instance, every replica exports its own view
	if app.monitoringCollector != nil {
		manager.Register(newContainerMetricsJob(app.config.Monitoring.ExportInterval, app.monitoringCollector))
	}

	if days := app.config.AutoScaler.EventRetentionDays; days > 0 {
		retentionLock := autoscaler.NewRedisDistributedLock(redisClient, "cleanup:scaling-event-retention-lock")
		manager.Register(jobs.WithLock(newEventRetentionJob(eventRetentionRun, days, app.mysqlRepo.ScalingEvent), retentionLock))
	} else {
		logger.InfoCtx(app.ctx, "Scaling events are kept forever")
	}

	reaperLock := autoscaler.NewRedisDistributedLock(redisClient, "cleanup:stale-loadtest-lock")
	manager.Register(jobs.WithLock(newStaleLoadTestJob(staleLoadTestInterval, staleLoadTestGrace, app.loadTestService), reaperLock))

	app.jobsManager = manager
	return nil
}

// containerMetricsJob exports container usage gauges
type containerMetricsJob struct {
	interval  time.Duration
	collector *monitoring.Collector
}

func newContainerMetricsJob(interval time.Duration, collector *monitoring.Collector) jobs.Job {
	return &containerMetricsJob{interval: interval, collector: collector}
}

func (j *containerMetricsJob) Name() string { return "container-metrics-export" }

func (j *containerMetricsJob) Interval() time.Duration { return j.interval }

func (j *containerMetricsJob) Run(ctx context.Context) error {
	usage, err := j.collector.Collect(ctx)
	if err != nil {
		return err
	}
	logger.DebugCtx(ctx, "exported usage of %d containers", len(usage))
	return nil
}

// eventRetentionJob deletes scaling events older than the retention window, daily
type eventRetentionJob struct {
	interval      time.Duration
	retentionDays int
	repo          *mysqlstore.ScalingEventRepository
}

func newEventRetentionJob(interval time.Duration, retentionDays int, repo *mysqlstore.ScalingEventRepository) jobs.Job {
	return &eventRetentionJob{interval: interval, retentionDays: retentionDays, repo: repo}
}

func (j *eventRetentionJob) Name() string { return "scaling-event-retention" }

func (j *eventRetentionJob) Interval() time.Duration { return j.interval }

func (j *eventRetentionJob) AlignToInterval() bool { return true }

func (j *eventRetentionJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return fmt.Errorf("scaling event repository not configured")
	}

	before := time.Now().AddDate(0, 0, -j.retentionDays)
	rows, err := j.repo.DeleteOldEvents(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to delete old scaling events: %w", err)
	}
	if rows > 0 {
		logger.InfoCtx(ctx, "cleaned up %d scaling events (older than %d days)", rows, j.retentionDays)
	}
	return nil
}

// staleLoadTestJob fails running tests whose process died
type staleLoadTestJob struct {
	interval time.Duration
	grace    time.Duration
	svc      *service.LoadTestService
}

func newStaleLoadTestJob(interval, grace time.Duration, svc *service.LoadTestService) jobs.Job {
	return &staleLoadTestJob{interval: interval, grace: grace, svc: svc}
}

func (j *staleLoadTestJob) Name() string { return "stale-loadtest-reaper" }

func (j *staleLoadTestJob) Interval() time.Duration { return j.interval }

func (j *staleLoadTestJob) Run(ctx context.Context) error {
	if j.svc == nil {
		return fmt.Errorf("load test service not configured")
	}

	reaped, err := j.svc.ReapStale(ctx, j.grace)
	if err != nil {
		return err
	}
	if reaped > 0 {
		logger.WarnCtx(ctx, "marked %d stale load tests as failed", reaped)
	}
	return nil
}
