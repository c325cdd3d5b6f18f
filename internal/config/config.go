// Package config loads application configuration from a YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file values.
// Nested keys are separated by a double underscore: MARKETPLACE_DATABASE__URL.
const EnvPrefix = "MARKETPLACE_"

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	CORS       CORSConfig       `koanf:"cors"`
	Auth       AuthConfig       `koanf:"auth"`
	App        AppConfig        `koanf:"app"`
	Email      EmailConfig      `koanf:"email"`
	Queue      QueueConfig      `koanf:"queue"`
	Cron       CronConfig       `koanf:"cron"`
	Moderation ModerationConfig `koanf:"moderation"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains settings for tokens and webhooks of the identity provider.
type AuthConfig struct {
	JWTSecret     string `koanf:"jwt_secret"`
	Issuer        string `koanf:"issuer"`
	WebhookSecret string `koanf:"webhook_secret"`
}

// AppConfig contains values rendered into outgoing emails.
type AppConfig struct {
	Name         string `koanf:"name"`
	BaseURL      string `koanf:"base_url"`
	SupportEmail string `koanf:"support_email"`
}

// EmailConfig contains SMTP transport settings.
type EmailConfig struct {
	Enabled            bool    `koanf:"enabled"`
	SMTPHost           string  `koanf:"smtp_host"`
	SMTPPort           int     `koanf:"smtp_port"`
	SMTPUser           string  `koanf:"smtp_user"`
	SMTPPassword       string  `koanf:"smtp_password"`
	FromAddress        string  `koanf:"from_address"`
	FromName           string  `koanf:"from_name"`
	RateLimit          float64 `koanf:"rate_limit"`
	InsecureSkipVerify bool    `koanf:"insecure_skip_verify"`
}

// QueueConfig contains email queue processing settings.
type QueueConfig struct {
	BatchSize           int           `koanf:"batch_size"`
	SendTimeout         time.Duration `koanf:"send_timeout"`
	StaleAfter          time.Duration `koanf:"stale_after"`
	RetentionDays       int           `koanf:"retention_days"`
	MaintenanceInterval time.Duration `koanf:"maintenance_interval"`
}

// CronConfig contains settings for the shared-secret periodic trigger.
type CronConfig struct {
	// SecretHash is a bcrypt hash of the shared secret. Empty disables cron routes.
	SecretHash string `koanf:"secret_hash"`
}

// ModerationConfig contains listing review settings.
type ModerationConfig struct {
	ListingTTL   time.Duration `koanf:"listing_ttl"`
	ExpiryNotice time.Duration `koanf:"expiry_notice"`
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Name:    "Motorlot",
			BaseURL: "http://localhost:3000",
		},
		Email: EmailConfig{
			SMTPPort:  587,
			FromName:  "Motorlot",
			RateLimit: 5,
		},
		Queue: QueueConfig{
			BatchSize:           50,
			SendTimeout:         10 * time.Second,
			StaleAfter:          15 * time.Minute,
			RetentionDays:       30,
			MaintenanceInterval: time.Minute,
		},
		Moderation: ModerationConfig{
			ListingTTL:   30 * 24 * time.Hour,
			ExpiryNotice: 3 * 24 * time.Hour,
		},
	}
}

// Load reads configuration from path (optional) and environment variables.
// A missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envValue maps MARKETPLACE_EMAIL__SMTP_HOST to email.smtp_host.
func envValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "cors.allowed_origins" {
		origins := make([]string, 0)
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}

	return key, value
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			errs = append(errs, errors.New("email.smtp_host is required when email is enabled"))
		}
		if c.Email.FromAddress == "" {
			errs = append(errs, errors.New("email.from_address is required when email is enabled"))
		}
	}
	if c.Queue.BatchSize <= 0 {
		errs = append(errs, errors.New("queue.batch_size must be positive"))
	}
	if c.Queue.SendTimeout <= 0 {
		errs = append(errs, errors.New("queue.send_timeout must be positive"))
	}
	if c.Queue.StaleAfter > 0 && c.Queue.StaleAfter < c.Queue.SendTimeout+time.Minute {
		errs = append(errs, errors.New("queue.stale_after must exceed queue.send_timeout by at least a minute"))
	}
	if c.Queue.RetentionDays <= 0 {
		errs = append(errs, errors.New("queue.retention_days must be positive"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
