package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	API           APIConfig           `mapstructure:"api"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
}

// ServerConfig defines local listener settings
type ServerConfig struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// APIConfig defines the backend API endpoints
type APIConfig struct {
	SessionBaseURL      string `mapstructure:"session_base_url"`
	SubscriptionBaseURL string `mapstructure:"subscription_base_url"`
	Token               string `mapstructure:"token"`
	Timeout             string `mapstructure:"timeout"`
	RetryAttempts       int    `mapstructure:"retry_attempts"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines timer engine settings
type TrackingConfig struct {
	TickInterval string `mapstructure:"tick_interval"`
}

// NotificationsConfig defines notification thresholds and retention
type NotificationsConfig struct {
	WarnThreshold     string `mapstructure:"warn_threshold"`
	CriticalThreshold string `mapstructure:"critical_threshold"`
	ToastDurationMs   int    `mapstructure:"toast_duration_ms"`
	MaxHistory        int    `mapstructure:"max_history"`
	Retention         string `mapstructure:"retention"`
}

// BillingConfig defines cost resolver cache settings
type BillingConfig struct {
	CacheSize int    `mapstructure:"cache_size"`
	CacheTTL  string `mapstructure:"cache_ttl"`
}

// PolicyConfig defines admission policy settings
type PolicyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PolicyDir string `mapstructure:"policy_dir"`
}

// MaintenanceConfig defines the daily cleanup sweep
type MaintenanceConfig struct {
	DailySweepTime        string `mapstructure:"daily_sweep_time"`
	SnapshotRetentionDays int    `mapstructure:"snapshot_retention_days"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("POSTETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "0.0.0.0")

	// API defaults
	v.SetDefault("api.session_base_url", "http://localhost:8080/api/v1")
	v.SetDefault("api.subscription_base_url", "http://localhost:8080/api/v1")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.retry_attempts", 3)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/postetrack/postetrack.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 5)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.tick_interval", "1s")

	// Notification defaults
	v.SetDefault("notifications.warn_threshold", "5m")
	v.SetDefault("notifications.critical_threshold", "1m")
	v.SetDefault("notifications.toast_duration_ms", 10000)
	v.SetDefault("notifications.max_history", 100)
	v.SetDefault("notifications.retention", "720h")

	// Billing defaults
	v.SetDefault("billing.cache_size", 256)
	v.SetDefault("billing.cache_ttl", "30s")

	// Policy defaults
	v.SetDefault("policy.enabled", false)
	v.SetDefault("policy.policy_dir", "/etc/postetrack/policies")

	// Maintenance defaults
	v.SetDefault("maintenance.daily_sweep_time", "04:00")
	v.SetDefault("maintenance.snapshot_retention_days", 7)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.API.SessionBaseURL == "" {
		return fmt.Errorf("session API base URL is required")
	}
	if cfg.API.SubscriptionBaseURL == "" {
		return fmt.Errorf("subscription API base URL is required")
	}
	if _, err := time.ParseDuration(cfg.API.Timeout); err != nil {
		return fmt.Errorf("invalid API timeout: %w", err)
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	if _, err := time.ParseDuration(cfg.Tracking.TickInterval); err != nil {
		return fmt.Errorf("invalid tick interval: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Notifications.WarnThreshold); err != nil {
		return fmt.Errorf("invalid warn threshold: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Notifications.CriticalThreshold); err != nil {
		return fmt.Errorf("invalid critical threshold: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Notifications.Retention); err != nil {
		return fmt.Errorf("invalid notification retention: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Billing.CacheTTL); err != nil {
		return fmt.Errorf("invalid billing cache TTL: %w", err)
	}

	if _, err := ParseClockTime(cfg.Maintenance.DailySweepTime); err != nil {
		return fmt.Errorf("invalid daily sweep time: %w", err)
	}

	if cfg.Policy.Enabled && cfg.Policy.PolicyDir == "" {
		return fmt.Errorf("policy directory is required when the admission policy is enabled")
	}

	return nil
}

// ParseClockTime parses a "HH:MM" wall-clock time into hour and minute.
func ParseClockTime(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
