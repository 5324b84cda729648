package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	Storage  StorageConfig  `yaml:"storage"`
	Bedrock  BedrockConfig  `yaml:"bedrock"`
	Gmail    GmailConfig    `yaml:"gmail"`
	Notify   NotifyConfig   `yaml:"notify"`
	Polling  PollingConfig  `yaml:"polling"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Claims   ClaimsConfig   `yaml:"claims"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	host := s.Host
	port := s.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis seen-cache settings. The system runs
// fine without Redis; the poller falls back to database uniqueness checks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AWSConfig holds shared AWS credentials and region
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// StorageConfig holds S3 document storage settings
type StorageConfig struct {
	S3Bucket  string `yaml:"s3_bucket"`
	KeyPrefix string `yaml:"key_prefix"`
}

// BedrockConfig holds LLM extraction settings
type BedrockConfig struct {
	ModelID        string `yaml:"model_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call LLM timeout.
func (b BedrockConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// GmailConfig holds the inbound mailbox settings
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	MailboxEmail    string `yaml:"mailbox_email"`
	MaxResults      int64  `yaml:"max_results"`
}

// NotifyConfig holds acknowledgement email settings
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// PollingConfig holds background worker timing
type PollingConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	OCRBatchSize    int `yaml:"ocr_batch_size"`
}

// Interval returns the poll interval with the 60s default applied.
func (p PollingConfig) Interval() time.Duration {
	if p.IntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// BatchSize returns the OCR batch size with the default cap applied.
func (p PollingConfig) BatchSize() int {
	if p.OCRBatchSize <= 0 || p.OCRBatchSize > 10 {
		return 10
	}
	return p.OCRBatchSize
}

// WebhookConfig holds inbound webhook verification settings. An empty
// secret disables signature checks (dev mode).
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// ClaimsConfig holds claim-number generation settings
type ClaimsConfig struct {
	NumberPrefix string `yaml:"number_prefix"`
}

// Prefix returns the claim-number prefix with the default applied.
func (c ClaimsConfig) Prefix() string {
	if c.NumberPrefix == "" {
		return "CLAIM"
	}
	return c.NumberPrefix
}

// Load reads configuration from a YAML file. A missing file is not an
// error; env overrides can supply everything.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// Environment variables take precedence over the YAML file.
func LoadFromEnv(path string) (*Config, error) {
	// Best-effort .env load for local development
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("CLAIMS_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("GMAIL_CREDENTIALS_FILE"); v != "" {
		cfg.Gmail.CredentialsFile = v
	}
	if v := os.Getenv("GMAIL_TOKEN_FILE"); v != "" {
		cfg.Gmail.TokenFile = v
	}
	if v := os.Getenv("NOTIFY_FROM_EMAIL"); v != "" {
		cfg.Notify.FromEmail = v
		cfg.Notify.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("CLAIM_NUMBER_PREFIX"); v != "" {
		cfg.Claims.NumberPrefix = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Gmail.MaxResults == 0 {
		cfg.Gmail.MaxResults = 25
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
}
