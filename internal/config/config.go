package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration loaded from config.yaml.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
		LockWaitSeconds int    `yaml:"lock_wait_seconds"`
	} `yaml:"redis"`

	AMQP struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"amqp"`

	API struct {
		Port               int      `yaml:"port"`
		Keys               []string `yaml:"keys"`
		RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
		RateLimitBurst     int      `yaml:"rate_limit_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		SearchWindowDays      int `yaml:"search_window_days"`
		RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	} `yaml:"scheduling"`

	Reminders ReminderConfig `yaml:"reminders"`

	TenantsConfigPath    string `yaml:"tenants_config_path"`
	CatalogReloadSeconds int    `yaml:"catalog_reload_seconds"`
}

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ReminderConfig controls the upcoming-appointment reminder dispatcher.
type ReminderConfig struct {
	Enabled              bool    `yaml:"enabled"`
	LeadHours            []int   `yaml:"lead_hours"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
	RatePerSecond        float64 `yaml:"rate_per_second"`
}

// Leads returns the configured reminder lead times.
func (r ReminderConfig) Leads() []time.Duration {
	out := make([]time.Duration, 0, len(r.LeadHours))
	for _, h := range r.LeadHours {
		out = append(out, time.Duration(h)*time.Hour)
	}
	return out
}

// CheckInterval is the time between reminder scans.
func (r ReminderConfig) CheckInterval() time.Duration {
	return time.Duration(r.CheckIntervalSeconds) * time.Second
}

// Interval is the time between snapshots.
func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

// Load reads config.yaml, expands ${ENV_VAR} placeholders and fills defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/salonsched.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 15
	}
	if c.Redis.LockWaitSeconds <= 0 {
		c.Redis.LockWaitSeconds = 5
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "salonsched.events"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RateLimitPerSecond <= 0 {
		c.API.RateLimitPerSecond = 20
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = 40
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Scheduling.SearchWindowDays <= 0 {
		c.Scheduling.SearchWindowDays = 14
	}
	if c.Scheduling.RequestTimeoutSeconds <= 0 {
		c.Scheduling.RequestTimeoutSeconds = 10
	}
	if len(c.Reminders.LeadHours) == 0 {
		c.Reminders.LeadHours = []int{24, 2}
	}
	if c.Reminders.CheckIntervalSeconds <= 0 {
		c.Reminders.CheckIntervalSeconds = 60
	}
	if c.Reminders.RatePerSecond <= 0 {
		c.Reminders.RatePerSecond = 20
	}
	if c.TenantsConfigPath == "" {
		c.TenantsConfigPath = "configs/tenants.yaml"
	}
	if c.CatalogReloadSeconds <= 0 {
		c.CatalogReloadSeconds = 30
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: unsupported driver '%s', expected sqlite or postgres", c.Database.Driver)
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port: invalid port %d", c.API.Port)
	}
	for i, k := range c.API.Keys {
		if k == "" {
			return fmt.Errorf("api.keys[%d]: key must not be empty", i)
		}
	}
	for i, h := range c.Reminders.LeadHours {
		if h <= 0 {
			return fmt.Errorf("reminders.lead_hours[%d]: must be positive, got %d", i, h)
		}
	}
	if c.Scheduling.SearchWindowDays > 90 {
		return fmt.Errorf("scheduling.search_window_days: %d exceeds 90", c.Scheduling.SearchWindowDays)
	}
	return nil
}

// RequestTimeout bounds every API request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scheduling.RequestTimeoutSeconds) * time.Second
}

// LockTTL is how long a Redis staff lock lives if its holder dies.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

// LockWait bounds how long a request waits for a Redis staff lock.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Redis.LockWaitSeconds) * time.Second
}

// CatalogReloadInterval is the tenants.yaml polling interval.
func (c *Config) CatalogReloadInterval() time.Duration {
	return time.Duration(c.CatalogReloadSeconds) * time.Second
}
