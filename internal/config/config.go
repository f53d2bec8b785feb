// Package config loads service settings from defaults, an optional YAML file
// and DAMAGE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DAMAGE"

// Config holds the runtime configuration of the service.
type Config struct {
	LogLevel string     `mapstructure:"log_level"`
	HTTP     HTTP       `mapstructure:"http"`
	Database Database   `mapstructure:"database"`
	Redis    Redis      `mapstructure:"redis"`
	Classify Classifier `mapstructure:"classifier"`
	Batch    Batch      `mapstructure:"batch"`
	Storage  Storage    `mapstructure:"storage"`
	JWT      JWT        `mapstructure:"jwt"`
	NATS     NATS       `mapstructure:"nats"`
	// CostTablePath points at a YAML cost table. Empty uses the built-in table.
	CostTablePath string `mapstructure:"cost_table_path"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	// TrustedProxies lists the proxy addresses or CIDRs allowed to set
	// X-Forwarded-For. Empty means the socket peer is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Redis is optional. An empty Addr selects the in-process cache.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type Classifier struct {
	// Backend is "grpc" or "http".
	Backend     string        `mapstructure:"backend"`
	Addr        string        `mapstructure:"addr"`
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type Batch struct {
	Workers       int   `mapstructure:"workers"`
	MaxImages     int   `mapstructure:"max_images"`
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
}

type Storage struct {
	UploadsDir   string `mapstructure:"uploads_dir"`
	PredictedDir string `mapstructure:"predicted_dir"`
}

type JWT struct {
	Secret   string `mapstructure:"secret"`
	Audience string `mapstructure:"audience"`
}

// NATS is optional. An empty URL disables event publishing.
type NATS struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.public_base_url", "")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.rate_limit", 2.0)
	v.SetDefault("http.rate_burst", 5)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "damage.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.cache_ttl", 10*time.Minute)
	v.SetDefault("classifier.backend", "grpc")
	v.SetDefault("classifier.addr", "classifier:50051")
	v.SetDefault("classifier.url", "http://classifier:5000")
	v.SetDefault("classifier.timeout", 30*time.Second)
	v.SetDefault("classifier.concurrency", 1)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.max_images", 6)
	v.SetDefault("batch.max_image_bytes", 16<<20)
	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("storage.predicted_dir", "predicted")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "damage.estimates")
	v.SetDefault("cost_table_path", "")
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Classify.Backend {
	case "grpc":
		if c.Classify.Addr == "" {
			errs = append(errs, errors.New("classifier.addr is required for the grpc backend"))
		}
	case "http":
		if c.Classify.URL == "" {
			errs = append(errs, errors.New("classifier.url is required for the http backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.backend must be grpc or http, got %q", c.Classify.Backend))
	}
	if c.Classify.Concurrency < 1 {
		errs = append(errs, errors.New("classifier.concurrency must be at least 1"))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, errors.New("batch.workers must be at least 1"))
	}
	if c.Batch.MaxImages < 1 || c.Batch.MaxImages > 6 {
		errs = append(errs, errors.New("batch.max_images must be between 1 and 6"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}
