package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	Session    SessionConfig    `yaml:"session"`
	Device     DeviceConfig     `yaml:"device"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the local API server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	AdminToken      string  `yaml:"admin_token"`
}

// RemoteConfig describes the hosted backend the queue is replayed against.
type RemoteConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	AccessToken     string        `yaml:"access_token"`
	EmployeeID      string        `yaml:"employee_id"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// SyncConfig holds the sync engine and connectivity monitor settings.
type SyncConfig struct {
	IntervalSeconds   int           `yaml:"interval_seconds"`
	Interval          time.Duration `yaml:"-"`
	DebounceMillis    int           `yaml:"debounce_millis"`
	Debounce          time.Duration `yaml:"-"`
	MaxAttempts       int           `yaml:"max_attempts"`
	ProbeConnectivity bool          `yaml:"probe_connectivity"`
}

// SessionConfig holds the active-session reconciler settings.
type SessionConfig struct {
	PollSeconds int           `yaml:"poll_seconds"`
	Poll        time.Duration `yaml:"-"`
}

// DeviceConfig allows a provisioned device id to replace the generated one.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// DatabaseConfig holds the local state database configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default and derives the durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 30
	}
	cfg.Remote.Timeout = time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
	if cfg.Remote.RateLimitPerSec <= 0 {
		cfg.Remote.RateLimitPerSec = 5
	}
	if cfg.Remote.RateLimitBurst <= 0 {
		cfg.Remote.RateLimitBurst = 5
	}

	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	if cfg.Sync.DebounceMillis <= 0 {
		cfg.Sync.DebounceMillis = 2000
	}
	cfg.Sync.Debounce = time.Duration(cfg.Sync.DebounceMillis) * time.Millisecond
	if cfg.Sync.MaxAttempts <= 0 {
		cfg.Sync.MaxAttempts = 5
	}

	if cfg.Session.PollSeconds <= 0 {
		cfg.Session.PollSeconds = 30
	}
	cfg.Session.Poll = time.Duration(cfg.Session.PollSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "timesync.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
