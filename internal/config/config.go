package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"moviesite/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// QueueConfig tunes the deferred write queue.
type QueueConfig struct {
	BatchSize               int           `yaml:"batch_size"`
	PollInterval            time.Duration `yaml:"poll_interval"`
	MaxRetries              int           `yaml:"max_retries"`
	QuarantineMissingTarget bool          `yaml:"quarantine_missing_target"`
	DeadLetterKey           string        `yaml:"dead_letter_key"`
	StaleAfter              time.Duration `yaml:"stale_after"`
	Backoff                 BackoffConfig `yaml:"backoff"`
}

// BackoffConfig delays retried intents. A zero InitialDelay retries on the next pass.
type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

type APIConfig struct {
	HTTP       APIHTTPConfig       `yaml:"http"`
	Auth       APIAuthConfig       `yaml:"auth"`
	RateLimit  APIRateLimitConfig  `yaml:"rate_limit"`
	LoginLimit APILoginLimitConfig `yaml:"login_limit"`
}

type APIHTTPConfig struct {
	Port           int   `yaml:"port"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type APIAuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APILoginLimitConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

type StorageConfig struct {
	Path      string `yaml:"path"`
	PublicURL string `yaml:"public_url"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values already in the environment win
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Auth.JWTSecret == "" || c.API.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("api.auth.jwt_secret is required")
	}
	if c.Queue.MaxRetries < 1 {
		return errors.New("queue.max_retries must be at least 1")
	}
	if c.Queue.BatchSize < 1 {
		return errors.New("queue.batch_size must be at least 1")
	}
	if c.Queue.Backoff.Factor < 0 {
		return errors.New("queue.backoff.factor must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "moviesite"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 4000
	}
	if c.API.HTTP.MaxUploadBytes == 0 {
		c.API.HTTP.MaxUploadBytes = 32 << 20
	}
	if c.API.Auth.TokenTTL == 0 {
		c.API.Auth.TokenTTL = models.DefaultTokenTTL
	}
	if c.API.LoginLimit.Attempts == 0 {
		c.API.LoginLimit.Attempts = models.DefaultLoginAttempts
	}
	if c.API.LoginLimit.Window == 0 {
		c.API.LoginLimit.Window = models.DefaultLoginWindow
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Queue defaults
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = models.DefaultBatchSize
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = models.DefaultPollInterval
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = models.DefaultMaxRetries
	}
	if c.Queue.StaleAfter == 0 {
		c.Queue.StaleAfter = models.DefaultStaleAfter
	}
	if c.Queue.DeadLetterKey == "" {
		c.Queue.DeadLetterKey = "moviesite:queue:deadletter"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/uploads"
	}
	if c.Storage.PublicURL == "" {
		c.Storage.PublicURL = "/uploads"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./data/exports"
	}
}
