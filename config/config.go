package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Blob     BlobConfig     `yaml:"blob"`
	Billing  BillingConfig  `yaml:"billing"`
	Features FeatureConfig  `yaml:"features"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	// ResponseCache turns on the in-process cache of hierarchy and equipment reads.
	// It is only coherent for a single instance; leave it off behind a load balancer.
	ResponseCache   bool   `yaml:"response_cache"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	TeamHeader      string `yaml:"team_header"`
	UserHeader      string `yaml:"user_header"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// BlobConfig selects the object store that holds media bytes.
type BlobConfig struct {
	Driver              string        `yaml:"driver"`
	S3                  S3Config      `yaml:"s3"`
	SignedURLTTLSeconds int           `yaml:"signed_url_ttl_seconds"`
	SignedURLTTL        time.Duration `yaml:"-"`
	ReaperWorkers       int           `yaml:"reaper_workers"`
}

// S3Config holds S3 / MinIO connection settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// BillingConfig selects where site lifecycle events are sent.
type BillingConfig struct {
	Driver  string        `yaml:"driver"`
	Redis   RedisConfig   `yaml:"redis"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// RedisConfig holds the Redis Streams target.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// WebhookConfig holds the HTTP billing endpoint.
type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// FeatureConfig carries deployment switches that are read once at startup.
type FeatureConfig struct {
	EquipmentDeletePolicy string `yaml:"equipment_delete_policy"`
	HierarchyDeletePolicy string `yaml:"hierarchy_delete_policy"`
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

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Server.TeamHeader == "" {
		cfg.Server.TeamHeader = "X-Team-ID"
	}
	if cfg.Server.UserHeader == "" {
		cfg.Server.UserHeader = "X-User-ID"
	}

	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Service == "" {
		cfg.Log.Service = "medgas-backend"
	}

	switch cfg.Blob.Driver {
	case "":
		cfg.Blob.Driver = "memory"
	case "memory":
	case "s3":
		if cfg.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob.driver %q", cfg.Blob.Driver)
	}
	if cfg.Blob.SignedURLTTLSeconds <= 0 {
		cfg.Blob.SignedURLTTLSeconds = 900
	}
	cfg.Blob.SignedURLTTL = time.Duration(cfg.Blob.SignedURLTTLSeconds) * time.Second
	if cfg.Blob.ReaperWorkers <= 0 {
		cfg.Blob.ReaperWorkers = 2
	}

	switch cfg.Billing.Driver {
	case "":
		cfg.Billing.Driver = "none"
	case "none":
	case "redis":
		if cfg.Billing.Redis.Addr == "" {
			return fmt.Errorf("billing.redis.addr is required for the redis driver")
		}
		if cfg.Billing.Redis.Stream == "" {
			cfg.Billing.Redis.Stream = "billing:site-events"
		}
	case "webhook":
		if cfg.Billing.Webhook.URL == "" {
			return fmt.Errorf("billing.webhook.url is required for the webhook driver")
		}
		if cfg.Billing.Webhook.TimeoutSeconds <= 0 {
			cfg.Billing.Webhook.TimeoutSeconds = 5
		}
	default:
		return fmt.Errorf("unknown billing.driver %q", cfg.Billing.Driver)
	}

	switch cfg.Features.EquipmentDeletePolicy {
	case "":
		cfg.Features.EquipmentDeletePolicy = "reject"
	case "reject", "cascade":
	default:
		return fmt.Errorf("unknown features.equipment_delete_policy %q", cfg.Features.EquipmentDeletePolicy)
	}
	switch cfg.Features.HierarchyDeletePolicy {
	case "":
		cfg.Features.HierarchyDeletePolicy = "reassign"
	case "reassign", "block":
	default:
		return fmt.Errorf("unknown features.hierarchy_delete_policy %q", cfg.Features.HierarchyDeletePolicy)
	}
	return nil
}
