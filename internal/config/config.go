package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	Storage     string `mapstructure:"STORAGE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	RatingMaxRetries     int           `mapstructure:"RATING_MAX_RETRIES"`
	RatingCacheTTL       time.Duration `mapstructure:"RATING_CACHE_TTL"`
	ReminderPollInterval time.Duration `mapstructure:"REMINDER_POLL_INTERVAL"`
	ReminderTimezone     string        `mapstructure:"REMINDER_TIMEZONE"`
	ReminderDedupTTL     time.Duration `mapstructure:"REMINDER_DEDUP_TTL"`
	VisitSweepInterval   time.Duration `mapstructure:"VISIT_SWEEP_INTERVAL"`
	UpcomingReminderLead time.Duration `mapstructure:"UPCOMING_REMINDER_LEAD"`

	NotifySink          string   `mapstructure:"NOTIFY_SINK"`
	KafkaBrokers        []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic          string   `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL         string   `mapstructure:"SQS_QUEUE_URL"`
	AWSRegion           string   `mapstructure:"AWS_REGION"`
	AWSEndpointOverride string   `mapstructure:"AWS_ENDPOINT_OVERRIDE"`
	WebhookURL          string   `mapstructure:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret       string   `mapstructure:"NOTIFY_WEBHOOK_SECRET"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
	TracingEnabled bool `mapstructure:"TRACING_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"RATING_MAX_RETRIES", "RATING_CACHE_TTL", "REMINDER_POLL_INTERVAL", "REMINDER_TIMEZONE",
	"REMINDER_DEDUP_TTL", "VISIT_SWEEP_INTERVAL", "UPCOMING_REMINDER_LEAD",
	"NOTIFY_SINK", "KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE_URL", "AWS_REGION",
	"AWS_ENDPOINT_OVERRIDE", "NOTIFY_WEBHOOK_URL", "NOTIFY_WEBHOOK_SECRET",
	"METRICS_ENABLED", "TRACING_ENABLED",
}

// Load reads the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATING_MAX_RETRIES", 8)
	v.SetDefault("RATING_CACHE_TTL", "10m")
	v.SetDefault("REMINDER_POLL_INTERVAL", "1m")
	v.SetDefault("REMINDER_TIMEZONE", "UTC")
	v.SetDefault("REMINDER_DEDUP_TTL", "48h")
	v.SetDefault("VISIT_SWEEP_INTERVAL", "5m")
	v.SetDefault("UPCOMING_REMINDER_LEAD", "1h")
	v.SetDefault("NOTIFY_SINK", "log")
	v.SetDefault("KAFKA_TOPIC", "booking-events")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("TRACING_ENABLED", false)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList normalises a list key given either as a comma-separated env
// value or as a list in .env.
func splitList(parsed []string, raw string) []string {
	if len(parsed) <= 1 {
		parsed = strings.Split(raw, ",")
	}
	var out []string
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) UseMemoryStorage() bool {
	return c.Storage == "memory"
}

// Location resolves REMINDER_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReminderTimezone)
	if err != nil {
		return nil, fmt.Errorf("REMINDER_TIMEZONE %q: %w", c.ReminderTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration can start the server.
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORAGE=memory is not allowed in production")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE is postgres")
		}
	default:
		return fmt.Errorf("STORAGE must be \"postgres\" or \"memory\", got %q", c.Storage)
	}

	switch c.NotifySink {
	case "log":
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when NOTIFY_SINK is kafka")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when NOTIFY_SINK is sqs")
		}
	case "webhook":
		if c.WebhookURL == "" || c.WebhookSecret == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL and NOTIFY_WEBHOOK_SECRET are required when NOTIFY_SINK is webhook")
		}
	default:
		return fmt.Errorf("NOTIFY_SINK must be one of log, kafka, sqs, webhook; got %q", c.NotifySink)
	}

	if c.RatingMaxRetries < 1 {
		return fmt.Errorf("RATING_MAX_RETRIES must be at least 1, got %d", c.RatingMaxRetries)
	}
	if c.ReminderPollInterval <= 0 || c.VisitSweepInterval <= 0 {
		return fmt.Errorf("REMINDER_POLL_INTERVAL and VISIT_SWEEP_INTERVAL must be positive")
	}
	if c.UpcomingReminderLead < 0 {
		return fmt.Errorf("UPCOMING_REMINDER_LEAD must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
