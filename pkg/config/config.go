package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Database     DatabaseConfig     `yaml:"database"`
	Logger       LoggerConfig       `yaml:"logger"`
	K8s          K8sConfig          `yaml:"k8s"`
	AutoScaler   AutoScalerConfig   `yaml:"autoscaler"`
	LoadTest     LoadTestConfig     `yaml:"loadtest"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Simulation   SimulationConfig   `yaml:"simulation"`
	Notification NotificationConfig `yaml:"notification"`
	Providers    *ProvidersConfig   `yaml:"providers,omitempty"` // Providers configuration (optional)
}

// ServerConfig server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

// RedisConfig Redis configuration.
// Empty Addr disables Redis; locks and trackers fall back to in-process mode.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // mysql, sqlite
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SQLitePath string `yaml:"sqlite_path"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// K8sConfig K8s configuration, used only by the k8s container registry
type K8sConfig struct {
	Namespace   string `yaml:"namespace"`
	Kubeconfig  string `yaml:"kubeconfig"`   // empty = in-cluster, then default loading rules
	PodTemplate string `yaml:"pod_template"` // optional YAML file overriding the replica pod spec
}

// ProvidersConfig providers configuration
type ProvidersConfig struct {
	Registry string `yaml:"registry"` // Container registry: simulated, k8s
	Metrics  string `yaml:"metrics"`  // Metrics source: simulated
}

// AutoScalerConfig autoscaler configuration
type AutoScalerConfig struct {
	Enabled             bool `yaml:"enabled"`               // Whether to enable autoscaling
	Interval            int  `yaml:"interval"`              // Control loop interval (seconds)
	MinCooldownPeriod   int  `yaml:"min_cooldown_period"`   // Lowest accepted policy cooldown (seconds)
	MinEvaluationPeriod int  `yaml:"min_evaluation_period"` // Lowest accepted policy evaluation period (seconds)
	EventRetentionDays  int  `yaml:"event_retention_days"`  // 0 keeps scaling events forever
}

// LoadTestConfig load generator configuration
type LoadTestConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	FailureRatio      float64       `yaml:"failure_ratio"`     // failed/(completed+failed) above this marks the test failed
	SubscriberBuffer  int           `yaml:"subscriber_buffer"` // live metric buffer per subscriber
	CancelWaitTimeout time.Duration `yaml:"cancel_wait_timeout"`
}

// MonitoringConfig Prometheus export configuration
type MonitoringConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// SimulationConfig simulated container settings
type SimulationConfig struct {
	Host string `yaml:"host"` // host used to build container URLs
}

// NotificationConfig notification configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // Feishu webhook URL, falls back to FEISHU_WEBHOOK_URL
}

// DefaultAutoScalerConfig returns the autoscaler defaults.
func DefaultAutoScalerConfig() AutoScalerConfig {
	return AutoScalerConfig{
		Enabled:             true,
		Interval:            30,
		MinCooldownPeriod:   60,
		MinEvaluationPeriod: 30,
		EventRetentionDays:  0,
	}
}

// DefaultLoadTestConfig returns the load generator defaults.
func DefaultLoadTestConfig() LoadTestConfig {
	return LoadTestConfig{
		RequestTimeout:    5 * time.Second,
		SampleInterval:    2 * time.Second,
		FailureRatio:      0.5,
		SubscriberBuffer:  16,
		CancelWaitTimeout: 10 * time.Second,
	}
}

// DefaultMonitoringConfig returns the monitoring defaults.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		Enabled:        true,
		ExportInterval: 15 * time.Second,
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		AutoScaler: AutoScalerConfig{Enabled: true},
		Monitoring: MonitoringConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	validateAndApplyDefaults(cfg)
	return cfg, nil
}

// validateAndApplyDefaults replaces zero or invalid values with defaults
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "intelliscale.db"
	}

	if cfg.Providers == nil {
		cfg.Providers = &ProvidersConfig{}
	}
	if cfg.Providers.Registry == "" {
		cfg.Providers.Registry = "simulated"
	}
	if cfg.Providers.Metrics == "" {
		cfg.Providers.Metrics = "simulated"
	}

	if cfg.K8s.Namespace == "" {
		cfg.K8s.Namespace = "default"
	}
	if cfg.Simulation.Host == "" {
		cfg.Simulation.Host = "localhost"
	}

	asDefaults := DefaultAutoScalerConfig()
	if cfg.AutoScaler.Interval <= 0 {
		cfg.AutoScaler.Interval = asDefaults.Interval
	}
	if cfg.AutoScaler.MinCooldownPeriod <= 0 {
		cfg.AutoScaler.MinCooldownPeriod = asDefaults.MinCooldownPeriod
	}
	if cfg.AutoScaler.MinEvaluationPeriod <= 0 {
		cfg.AutoScaler.MinEvaluationPeriod = asDefaults.MinEvaluationPeriod
	}
	if cfg.AutoScaler.EventRetentionDays < 0 {
		cfg.AutoScaler.EventRetentionDays = asDefaults.EventRetentionDays
	}

	ltDefaults := DefaultLoadTestConfig()
	if cfg.LoadTest.RequestTimeout <= 0 {
		cfg.LoadTest.RequestTimeout = ltDefaults.RequestTimeout
	}
	if cfg.LoadTest.SampleInterval <= 0 {
		cfg.LoadTest.SampleInterval = ltDefaults.SampleInterval
	}
	if cfg.LoadTest.FailureRatio <= 0 || cfg.LoadTest.FailureRatio >= 1 {
		cfg.LoadTest.FailureRatio = ltDefaults.FailureRatio
	}
	if cfg.LoadTest.SubscriberBuffer <= 0 {
		cfg.LoadTest.SubscriberBuffer = ltDefaults.SubscriberBuffer
	}
	if cfg.LoadTest.CancelWaitTimeout <= 0 {
		cfg.LoadTest.CancelWaitTimeout = ltDefaults.CancelWaitTimeout
	}

	if cfg.Monitoring.ExportInterval <= 0 {
		cfg.Monitoring.ExportInterval = DefaultMonitoringConfig().ExportInterval
	}
}
