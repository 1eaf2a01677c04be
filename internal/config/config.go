// Package config loads the watchdog configuration from YAML with
// environment-variable overrides for secrets and connection strings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the watchdog service.
type Config struct {
	Storage       StorageConfig      `yaml:"storage"`
	Redis         RedisConfig        `yaml:"redis"`
	Postgres      PostgresConfig     `yaml:"postgres"`
	SES           SESConfig          `yaml:"ses"`
	Watchdog      WatchdogConfig     `yaml:"watchdog"`
	Collaborators CollaboratorConfig `yaml:"collaborators"`
	Ops           OpsConfig          `yaml:"ops"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// StorageConfig holds DynamoDB/S3 settings for the approval row and blob
// stores.
type StorageConfig struct {
	Region            string `yaml:"region"`
	Profile           string `yaml:"profile"`
	SummaryTable      string `yaml:"summary_table"`
	TenantTable       string `yaml:"tenant_table"`
	TemplateTable     string `yaml:"template_table"`
	Bucket            string `yaml:"bucket"`
	AttachmentsPrefix string `yaml:"attachments_prefix"`
}

// RedisConfig holds optional Redis settings; Redis backs the run lock and
// the token-bucket pacer when configured.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds the optional run-log database.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SESConfig holds delivery settings for the SES notification sink.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// WatchdogConfig holds the reminder-run parameters.
type WatchdogConfig struct {
	LookbackDays          int           `yaml:"lookback_days"`
	BatchSize             int           `yaml:"batch_size"`
	MaxFailureCount       int           `yaml:"max_failure_count"`
	BatchPause            time.Duration `yaml:"batch_pause"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	BaseURL               string        `yaml:"base_url"`
	AttachmentSizeLimitMB int           `yaml:"attachment_size_limit_mb"`
	RatePerMinute         int           `yaml:"rate_per_minute"`
}

// CollaboratorConfig holds base URLs for the external HTTP collaborators.
type CollaboratorConfig struct {
	NamesURL   string        `yaml:"names_url"`
	HistoryURL string        `yaml:"history_url"`
	DetailsURL string        `yaml:"details_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryMax   int           `yaml:"retry_max"`
}

// OpsConfig holds the support/ops HTTP surface settings.
type OpsConfig struct {
	Port int  `yaml:"port"`
	CORS bool `yaml:"cors"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from a YAML file, pulling in a .env file
// if present and overriding secrets from the environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("WATCHDOG_BASE_URL"); v != "" {
		cfg.Watchdog.BaseURL = v
	}
	if v := os.Getenv("OPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Ops.Port = port
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Region == "" {
		c.Storage.Region = "us-west-2"
	}
	if c.Storage.SummaryTable == "" {
		c.Storage.SummaryTable = "approval-summary"
	}
	if c.Storage.TenantTable == "" {
		c.Storage.TenantTable = "approval-tenants"
	}
	if c.Storage.TemplateTable == "" {
		c.Storage.TemplateTable = "approval-email-templates"
	}
	if c.Storage.AttachmentsPrefix == "" {
		c.Storage.AttachmentsPrefix = "attachments"
	}
	if c.SES.Region == "" {
		c.SES.Region = c.Storage.Region
	}
	if c.Watchdog.LookbackDays == 0 {
		c.Watchdog.LookbackDays = 30
	}
	if c.Watchdog.BatchSize == 0 {
		c.Watchdog.BatchSize = 50
	}
	if c.Watchdog.MaxFailureCount == 0 {
		c.Watchdog.MaxFailureCount = 25
	}
	if c.Watchdog.BatchPause == 0 {
		c.Watchdog.BatchPause = 2 * time.Minute
	}
	if c.Watchdog.PollInterval == 0 {
		c.Watchdog.PollInterval = time.Hour
	}
	if c.Watchdog.AttachmentSizeLimitMB == 0 {
		c.Watchdog.AttachmentSizeLimitMB = 10
	}
	if c.Collaborators.Timeout == 0 {
		c.Collaborators.Timeout = 30 * time.Second
	}
	if c.Collaborators.RetryMax == 0 {
		c.Collaborators.RetryMax = 3
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
