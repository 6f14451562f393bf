package autoscaler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/monitoring"
)

const (
	globalConfigKey     = "autoscaler:global-config"
	recentEventsLimit   = 20
	triggerTicker       = "ticker"
	triggerManual       = "manual"
	stageMetrics        = "metrics"
	stageRegistry       = "registry"
	stageReplicaList    = "replica_list"
	stagePolicySnapshot = "policy_snapshot"
)

// Manager 自动扩缩容管理器
type Manager struct {
	config  *Config
	enabled bool
	running bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	resetCh chan time.Duration

	// single-slot guard: at most one pass at a time in this process
	slot chan struct{}

	store           interfaces.PolicyStore
	registry        interfaces.ContainerRegistry
	metrics         interfaces.MetricsSource
	executor        *Executor
	tracker         EvaluationTracker
	redisClient     *redis.Client   // Redis用于全局配置存储
	configKey       string          // 全局配置key
	distributedLock DistributedLock // 分布式锁，防止多副本冲突

	lastRunTime time.Time
	lastReport  *TickReport
	now         func() time.Time
}

// NewManager 创建自动扩缩容管理器
func NewManager(
	config *Config,
	store interfaces.PolicyStore,
	registry interfaces.ContainerRegistry,
	metrics interfaces.MetricsSource,
	redisClient *redis.Client,
) *Manager {
	if config.Interval <= 0 {
		config.Interval = 30
	}

	manager := &Manager{
		config:          config,
		enabled:         config.Enabled,
		slot:            make(chan struct{}, 1),
		resetCh:         make(chan time.Duration, 1),
		store:           store,
		registry:        registry,
		metrics:         metrics,
		executor:        NewExecutor(registry, store),
		tracker:         NewEvaluationTracker(redisClient),
		redisClient:     redisClient,
		configKey:       globalConfigKey,
		distributedLock: NewRedisDistributedLock(redisClient, autoscalerLockKey),
		now:             time.Now,
	}

	// 从Redis加载全局配置（如果存在）
	manager.loadPersistedConfig(context.Background())
	return manager
}

// Start 启动自动扩缩容控制循环
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("autoscaler is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	interval := m.config.Interval
	m.mu.Unlock()

	logger.InfoCtx(ctx, "starting autoscaler, interval: %d seconds", interval)

	go m.controlLoop(ctx, time.Duration(interval)*time.Second)
	return nil
}

// Stop 停止自动扩缩容, waits for a running pass to finish
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("autoscaler is not running")
	}
	close(m.stopCh)
	done := m.doneCh
	m.running = false
	m.mu.Unlock()

	<-done
	logger.Info("autoscaler stopped")
	return nil
}

// controlLoop 控制循环
func (m *Manager) controlLoop(ctx context.Context, interval time.Duration) {
	defer close(m.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case d := <-m.resetCh:
			ticker.Reset(d)
			logger.InfoCtx(ctx, "autoscaler interval changed to %s", d)
		case <-ticker.C:
			if !m.IsEnabled() {
				monitoring.AutoscalerTickSkipped.WithLabelValues("disabled").Inc()
				continue
			}
			m.tick(ctx)
		}
	}
}

// tick runs a scheduled pass unless one is already in progress
func (m *Manager) tick(ctx context.Context) {
	select {
	case m.slot <- struct{}{}:
	default:
		// 上一轮仍在执行，跳过本次
		monitoring.AutoscalerTickSkipped.WithLabelValues("busy").Inc()
		logger.WarnCtx(ctx, "previous autoscaler pass still running, skipping tick")
		return
	}
	defer func() { <-m.slot }()

	report, err := m.runOnce(ctx, false)
	if err != nil {
		logger.ErrorCtx(ctx, "autoscaler run failed: %v", err)
		return
	}
	if report.Actions > 0 || report.Errors > 0 {
		logger.InfoCtx(ctx, "autoscaler pass done: evaluated=%d, actions=%d, errors=%d",
			report.Evaluated, report.Actions, report.Errors)
	}
}

// EvaluateNow forces a pass over all enabled policies, ignoring evaluation periods.
// Cooldown and replica bounds still apply. It waits for a running pass to finish
// and returns ErrEvaluationBusy if ctx expires first. Works while the engine is disabled.
func (m *Manager) EvaluateNow(ctx context.Context) (*TickReport, error) {
	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrEvaluationBusy
	}
	defer func() { <-m.slot }()

	logger.InfoCtx(ctx, "manually triggering autoscaler evaluation")
	report, err := m.runOnce(ctx, true)
	if err != nil {
		return nil, err
	}
	if report.LockMissed {
		return nil, ErrEvaluationBusy
	}
	return report, nil
}

// runOnce 执行一次扩缩容评估. Caller holds the slot.
func (m *Manager) runOnce(ctx context.Context, forced bool) (*TickReport, error) {
	start := m.now()
	report := &TickReport{StartedAt: start, Forced: forced}

	// 🔒 使用分布式锁防止多副本冲突
	acquired, err := m.distributedLock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	if !acquired {
		// 另一个副本正在执行扩缩容，跳过本次执行
		monitoring.AutoscalerTickSkipped.WithLabelValues("lock").Inc()
		logger.DebugCtx(ctx, "autoscaler lock held by another instance, skipping this run")
		report.LockMissed = true
		return report, nil
	}
	defer func() {
		if err := m.distributedLock.Unlock(ctx); err != nil {
			logger.ErrorCtx(ctx, "failed to release distributed lock: %v", err)
		}
	}()

	trigger := triggerTicker
	if forced {
		trigger = triggerManual
	}
	monitoring.AutoscalerTicks.WithLabelValues(trigger).Inc()

	// one snapshot per pass; toggles made meanwhile apply next pass
	policies, err := m.store.ListEnabledPolicies(ctx)
	if err != nil {
		monitoring.EvaluationErrors.WithLabelValues(stagePolicySnapshot).Inc()
		return nil, fmt.Errorf("failed to list enabled policies: %w", err)
	}

	report.Policies = make([]PolicyResult, 0, len(policies))
	for _, p := range policies {
		res := m.evaluatePolicy(ctx, p, forced)
		if !res.Skipped {
			report.Evaluated++
		}
		if res.EventID != "" {
			report.Actions++
		}
		if res.Error != "" {
			report.Errors++
		}
		report.Policies = append(report.Policies, res)
	}

	report.Duration = m.now().Sub(start)
	monitoring.AutoscalerTickDuration.Observe(report.Duration.Seconds())

	m.mu.Lock()
	m.lastRunTime = start
	m.lastReport = report
	m.mu.Unlock()

	return report, nil
}

// evaluatePolicy evaluates one policy. A panic is contained to this policy.
func (m *Manager) evaluatePolicy(ctx context.Context, p *ScalingPolicy, forced bool) (res PolicyResult) {
	res = PolicyResult{
		PolicyID:    p.ID,
		ContainerID: p.ContainerID,
		Action:      constants.ScaleActionNone,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "panic while evaluating policy %d (%s): %v", p.ID, p.ContainerID, r)
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	now := m.now()
	if !forced {
		last, evaluated, err := m.tracker.LastEvaluated(ctx, p.ID)
		if err != nil {
			// treat as due; evaluating early is harmless, cooldown still applies
			logger.WarnCtx(ctx, "failed to read last evaluation of policy %d: %v", p.ID, err)
			evaluated = false
		}
		if !IsDue(p, last, evaluated, now) {
			res.Skipped = true
			return res
		}
	}

	sample, err := m.metrics.Sample(ctx, p.ContainerID)
	if err != nil {
		monitoring.EvaluationErrors.WithLabelValues(stageMetrics).Inc()
		logger.WarnCtx(ctx, "failed to sample metrics of %s: %v", p.ContainerID, err)
		res.Error = err.Error()
		return res
	}

	replicas, err := m.registry.ListReplicas(ctx, p.ContainerID)
	if err != nil {
		monitoring.EvaluationErrors.WithLabelValues(stageReplicaList).Inc()
		logger.WarnCtx(ctx, "failed to list replicas of %s: %v", p.ContainerID, err)
		res.Error = err.Error()
		return res
	}
	current := 1 + len(replicas)
	monitoring.ContainerReplicas.WithLabelValues(p.ContainerID).Set(float64(current))

	decision := Decide(p, sample, current, now)
	res.Decision = &decision
	logger.DebugCtx(ctx, "policy %d (%s): cpu=%.1f mem=%.1f replicas=%d -> %s (%s)",
		p.ID, p.ContainerID, sample.CPUPercent, sample.MemoryPercent, current, decision.Action, decision.Reason)

	if decision.IsAction() {
		event, err := m.executor.Execute(ctx, p, decision, replicas, now)
		if err != nil {
			// 失败不记录事件，也不更新时间戳，下一轮重试
			monitoring.EvaluationErrors.WithLabelValues(stageRegistry).Inc()
			logger.ErrorCtx(ctx, "failed to %s %s: %v", decision.Action, p.ContainerID, err)
			res.Error = err.Error()
			return res
		}
		res.Action = decision.Action
		res.EventID = event.EventID
	}

	if err := m.tracker.MarkEvaluated(ctx, p.ID, now); err != nil {
		logger.WarnCtx(ctx, "failed to record evaluation of policy %d: %v", p.ID, err)
	}
	return res
}

// GetStatus 获取自动扩缩容状态
func (m *Manager) GetStatus(ctx context.Context) (*AutoScalerStatus, error) {
	m.mu.RLock()
	status := &AutoScalerStatus{
		Enabled:     m.enabled,
		Running:     m.running,
		Interval:    m.config.Interval,
		LastRunTime: m.lastRunTime,
		LastReport:  m.lastReport,
	}
	m.mu.RUnlock()

	policies, err := m.store.ListEnabledPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled policies: %w", err)
	}

	status.Policies = make([]*PolicyStatus, 0, len(policies))
	for _, p := range policies {
		status.Policies = append(status.Policies, m.PolicyStatus(ctx, p))
	}

	// 获取最近的事件
	events, err := m.store.ListScalingEvents(ctx, interfaces.ScalingEventFilter{Limit: recentEventsLimit})
	if err != nil {
		logger.WarnCtx(ctx, "failed to list recent events: %v", err)
		events = []*ScalingEvent{}
	}
	status.RecentEvents = events

	return status, nil
}

// PolicyStatus computes the live status of one policy
func (m *Manager) PolicyStatus(ctx context.Context, p *ScalingPolicy) *PolicyStatus {
	now := m.now()
	cooldown := p.CooldownRemaining(now)

	ps := &PolicyStatus{
		PolicyID:          p.ID,
		ContainerID:       p.ContainerID,
		Enabled:           p.Enabled,
		MinReplicas:       p.MinReplicas,
		MaxReplicas:       p.MaxReplicas,
		LastScaledAt:      p.LastScaledAt,
		CooldownRemaining: cooldown.Seconds(),
	}
	if p.LastScaledAt != nil {
		since := now.Sub(*p.LastScaledAt).Seconds()
		ps.TimeSinceLastScale = &since
	}

	if last, ok, err := m.tracker.LastEvaluated(ctx, p.ID); err == nil && ok {
		lastCopy := last
		ps.LastEvaluatedAt = &lastCopy
		if remaining := p.EvaluationInterval() - now.Sub(last); remaining > 0 {
			ps.NextEvaluationDueSec = remaining.Seconds()
		}
	}

	replicas, err := m.registry.ListReplicas(ctx, p.ContainerID)
	if err != nil {
		ps.ReplicaCountError = err.Error()
		return ps
	}
	ps.CurrentReplicas = 1 + len(replicas)
	ps.CanScaleUp = p.Enabled && cooldown == 0 && ps.CurrentReplicas < p.MaxReplicas
	ps.CanScaleDown = p.Enabled && cooldown == 0 && ps.CurrentReplicas > p.MinReplicas
	return ps
}

// GetScalingHistory 获取扩缩容历史, newest first
func (m *Manager) GetScalingHistory(ctx context.Context, filter interfaces.ScalingEventFilter) ([]*ScalingEvent, error) {
	return m.store.ListScalingEvents(ctx, filter)
}

// ForgetPolicy drops the evaluation schedule of a deleted policy
func (m *Manager) ForgetPolicy(ctx context.Context, policyID int64) error {
	return m.tracker.Forget(ctx, policyID)
}

// Enable 启用自动扩缩容
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	m.config.Enabled = true
	logger.Info("autoscaler enabled")

	// 持久化配置，避免重启后状态丢失
	m.persistConfig(context.Background())
}

// Disable 禁用自动扩缩容
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.config.Enabled = false
	logger.Info("autoscaler disabled")

	m.persistConfig(context.Background())
}

// IsEnabled 检查是否启用
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// IsRunning 检查是否正在运行
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// UpdateGlobalConfig 更新全局配置
func (m *Manager) UpdateGlobalConfig(ctx context.Context, config *Config) error {
	if config.Interval <= 0 {
		return fmt.Errorf("interval must be greater than 0")
	}

	m.mu.Lock()
	intervalChanged := m.config.Interval != config.Interval
	m.config.Enabled = config.Enabled
	m.config.Interval = config.Interval
	m.enabled = config.Enabled
	m.persistConfig(ctx)
	if intervalChanged {
		// only the newest interval matters, never block on the loop
		select {
		case <-m.resetCh:
		default:
		}
		select {
		case m.resetCh <- time.Duration(config.Interval) * time.Second:
		default:
		}
	}
	m.mu.Unlock()

	logger.InfoCtx(ctx, "autoscaler global config updated: enabled=%v, interval=%d", config.Enabled, config.Interval)
	return nil
}

// GetGlobalConfig 获取全局配置
func (m *Manager) GetGlobalConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Config{
		Enabled:  m.config.Enabled,
		Interval: m.config.Interval,
	}
}

func (m *Manager) loadPersistedConfig(ctx context.Context) {
	if m.redisClient == nil {
		return
	}
	data, err := m.redisClient.Get(ctx, m.configKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WarnCtx(ctx, "failed to load autoscaler config from redis: %v", err)
		}
		return
	}

	var persisted Config
	if err := json.Unmarshal(data, &persisted); err != nil {
		logger.WarnCtx(ctx, "failed to decode autoscaler config from redis: %v", err)
		return
	}
	if persisted.Interval <= 0 {
		persisted.Interval = m.config.Interval
	}

	m.mu.Lock()
	*m.config = persisted
	m.enabled = persisted.Enabled
	m.mu.Unlock()

	logger.InfoCtx(ctx, "loaded autoscaler config from redis")
}

// persistConfig caller holds m.mu
func (m *Manager) persistConfig(ctx context.Context) {
	if m.redisClient == nil {
		return
	}
	data, err := json.Marshal(m.config)
	if err != nil {
		logger.WarnCtx(ctx, "failed to encode autoscaler config: %v", err)
		return
	}
	if err := m.redisClient.Set(ctx, m.configKey, data, 0).Err(); err != nil {
		logger.WarnCtx(ctx, "failed to persist autoscaler config: %v", err)
	}
}
