package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Geofence   GeofenceConfig   `yaml:"geofence"`
	Automation AutomationConfig `yaml:"automation"`
	Engine     EngineConfig     `yaml:"engine"`
	Transport  TransportConfig  `yaml:"transport"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration. A DSN ending
// in .db (or the literal :memory:) selects the embedded sqlite driver,
// anything else is treated as a postgres DSN.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// GeofenceConfig holds the zone-membership tuning knobs.
type GeofenceConfig struct {
	ExitDebounceSamples int           `yaml:"exit_debounce_samples"`
	MaxAccuracyMeters   float64       `yaml:"max_accuracy_m"`
	MaxSampleAgeSeconds int           `yaml:"max_sample_age_seconds"`
	MaxSampleAge        time.Duration `yaml:"-"`
}

// AutomationConfig holds grace-period and command-retry tuning. Setting
// command_max_retries to -1 disables retries; 0 selects the default.
type AutomationConfig struct {
	GracePeriodSeconds    int           `yaml:"grace_period_seconds"`
	GracePeriodFloorSecs  int           `yaml:"grace_period_floor_seconds"`
	CommandTimeoutSeconds int           `yaml:"command_timeout_seconds"`
	CommandTimeout        time.Duration `yaml:"-"`
	CommandMaxRetries     int           `yaml:"command_max_retries"`
	BackoffBaseMillis     int           `yaml:"backoff_base_ms"`
	BackoffBase           time.Duration `yaml:"-"`
}

// EngineConfig holds the background evaluation loop settings.
type EngineConfig struct {
	Enabled             bool          `yaml:"enabled"`
	TickIntervalSeconds int           `yaml:"tick_interval_seconds"`
	TickInterval        time.Duration `yaml:"-"`
	TickBudgetSeconds   int           `yaml:"tick_budget_seconds"`
	TickBudget          time.Duration `yaml:"-"`
	EventRetention      int           `yaml:"event_retention"`
}

// TransportConfig selects and configures the hardware command transport.
type TransportConfig struct {
	Kind         string `yaml:"kind"` // "mqtt" or "loopback"
	BrokerURL    string `yaml:"broker_url"`
	ClientID     string `yaml:"client_id"`
	CommandTopic string `yaml:"command_topic"`
	AckTopic     string `yaml:"ack_topic"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
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

// ApplyDefaults fills in zero-valued fields and derives the duration fields
// from their second/millisecond counterparts.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "data/outletd.db"
	}

	if cfg.Geofence.ExitDebounceSamples <= 0 {
		cfg.Geofence.ExitDebounceSamples = 3
	}
	if cfg.Geofence.MaxAccuracyMeters <= 0 {
		cfg.Geofence.MaxAccuracyMeters = 100
	}
	if cfg.Geofence.MaxSampleAgeSeconds <= 0 {
		cfg.Geofence.MaxSampleAgeSeconds = 300
	}
	cfg.Geofence.MaxSampleAge = time.Duration(cfg.Geofence.MaxSampleAgeSeconds) * time.Second

	if cfg.Automation.GracePeriodFloorSecs <= 0 {
		cfg.Automation.GracePeriodFloorSecs = 10
	}
	if cfg.Automation.GracePeriodSeconds < cfg.Automation.GracePeriodFloorSecs {
		if cfg.Automation.GracePeriodSeconds > 0 {
			log.Printf("grace_period_seconds below floor of %ds; clamping", cfg.Automation.GracePeriodFloorSecs)
			cfg.Automation.GracePeriodSeconds = cfg.Automation.GracePeriodFloorSecs
		} else {
			cfg.Automation.GracePeriodSeconds = 900
		}
	}
	if cfg.Automation.CommandTimeoutSeconds <= 0 {
		cfg.Automation.CommandTimeoutSeconds = 5
	}
	cfg.Automation.CommandTimeout = time.Duration(cfg.Automation.CommandTimeoutSeconds) * time.Second
	if cfg.Automation.CommandMaxRetries == 0 {
		cfg.Automation.CommandMaxRetries = 2
	}
	if cfg.Automation.CommandMaxRetries < 0 {
		cfg.Automation.CommandMaxRetries = 0
	}
	if cfg.Automation.BackoffBaseMillis <= 0 {
		cfg.Automation.BackoffBaseMillis = 1000
	}
	cfg.Automation.BackoffBase = time.Duration(cfg.Automation.BackoffBaseMillis) * time.Millisecond

	if cfg.Engine.TickIntervalSeconds <= 0 {
		cfg.Engine.TickIntervalSeconds = 60
	}
	cfg.Engine.TickInterval = time.Duration(cfg.Engine.TickIntervalSeconds) * time.Second
	if cfg.Engine.TickBudgetSeconds <= 0 {
		cfg.Engine.TickBudgetSeconds = 25
	}
	cfg.Engine.TickBudget = time.Duration(cfg.Engine.TickBudgetSeconds) * time.Second
	if cfg.Engine.EventRetention <= 0 {
		cfg.Engine.EventRetention = 500
	}

	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "loopback"
	}
	if cfg.Transport.CommandTopic == "" {
		cfg.Transport.CommandTopic = "outlets/{id}/set"
	}
	if cfg.Transport.AckTopic == "" {
		cfg.Transport.AckTopic = "outlets/+/ack"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
