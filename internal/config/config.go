package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // SCHEDULE_TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"

	"github.com/mailgoal/mailgoal/internal/schedule"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	CronSecret           string
	TokenSecret          string
	CompletionLinkExpiry time.Duration
	EnableManualTrigger  bool

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Content generation
	GeminiAPIKey          string
	GeminiModel           string
	GeminiUseADC          bool
	GenerationTimeout     time.Duration
	GenerationMinInterval time.Duration

	// Dispatch
	DispatchPacing     time.Duration
	BatchTimeout       time.Duration
	StoreWriteAttempts int

	// Schedule
	ScheduleTimezone   string
	Location           *time.Location
	FrequencyIntervals schedule.Intervals
	StopAfterDeadline  bool

	// Observability (optional)
	SentryDSN string

	// Report archive (optional, S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3ReportPrefix  string
	S3PresignExpiry time.Duration

	// Dispatch events (optional)
	AMQPURL      string
	AMQPExchange string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "MailGoal"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envRequired("APP_URL"), // Required: base URL for completion links
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/mailgoal.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		CronSecret:           envRequired("CRON_SECRET"),
		TokenSecret:          envRequired("TOKEN_SECRET"),
		CompletionLinkExpiry: envDuration("COMPLETION_LINK_EXPIRY", 90*24*time.Hour), // 90 days
		EnableManualTrigger:  envBool("ENABLE_MANUAL_TRIGGER", false),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "MailGoal <reminders@example.com>"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Content generation (no key: fallback templates only)
		GeminiAPIKey:          envString("GEMINI_API_KEY", ""),
		GeminiModel:           envString("GEMINI_MODEL", "gemini-1.5-pro"),
		GeminiUseADC:          envBool("GEMINI_USE_ADC", false),
		GenerationTimeout:     envDuration("GENERATION_TIMEOUT", 30*time.Second),
		GenerationMinInterval: envDuration("GENERATION_MIN_INTERVAL", 30*time.Second), // 2 requests per minute

		// Dispatch
		DispatchPacing:     envDuration("DISPATCH_PACING", time.Second),
		BatchTimeout:       envDuration("BATCH_TIMEOUT", 5*time.Minute),
		StoreWriteAttempts: envInt("STORE_WRITE_ATTEMPTS", 3),

		// Schedule
		ScheduleTimezone:  envString("SCHEDULE_TIMEZONE", "UTC"),
		StopAfterDeadline: envBool("STOP_AFTER_DEADLINE", true),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Report archive (disabled unless S3_BUCKET is set)
		S3Region:        envString("S3_REGION", "us-east-1"),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		S3ReportPrefix:  envString("S3_REPORT_PREFIX", "reports"),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", time.Hour),

		// Dispatch events (disabled unless AMQP_URL is set)
		AMQPURL:      envString("AMQP_URL", ""),
		AMQPExchange: envString("AMQP_EXCHANGE", "reminders"),
	}

	cfg.Location, err = time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		slog.Error("config invalid SCHEDULE_TIMEZONE", "value", cfg.ScheduleTimezone, "error", err)
		os.Exit(1)
	}

	// Biweekly defaults to every 3 days. Set FREQUENCY_INTERVALS=biweekly=14d
	// for a fortnightly cadence.
	cfg.FrequencyIntervals, err = schedule.ParseIntervals(envString("FREQUENCY_INTERVALS", ""))
	if err != nil {
		slog.Error("config invalid FREQUENCY_INTERVALS", "error", err)
		os.Exit(1)
	}

	if cfg.StoreWriteAttempts < 1 {
		slog.Warn("config STORE_WRITE_ATTEMPTS below 1, using 1", "value", cfg.StoreWriteAttempts)
		cfg.StoreWriteAttempts = 1
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to use log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.GeminiAPIKey == "" && !cfg.GeminiUseADC {
		slog.Warn("no GEMINI_API_KEY configured, reminders use fallback templates only")
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
// Safe to log at startup.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		AppURL:  c.AppURL,
		Port:    c.Port,

		DBDriver: c.DBDriver,

		CompletionLinkExpiry: c.CompletionLinkExpiry,
		EnableManualTrigger:  c.EnableManualTrigger,

		EmailFrom: c.EmailFrom,

		GeminiModel:           c.GeminiModel,
		GeminiUseADC:          c.GeminiUseADC,
		GenerationTimeout:     c.GenerationTimeout,
		GenerationMinInterval: c.GenerationMinInterval,

		DispatchPacing:     c.DispatchPacing,
		BatchTimeout:       c.BatchTimeout,
		StoreWriteAttempts: c.StoreWriteAttempts,

		ScheduleTimezone:   c.ScheduleTimezone,
		Location:           c.Location,
		FrequencyIntervals: c.FrequencyIntervals,
		StopAfterDeadline:  c.StopAfterDeadline,

		S3Region:       c.S3Region,
		S3Bucket:       c.S3Bucket,
		S3Endpoint:     c.S3Endpoint,
		S3ReportPrefix: c.S3ReportPrefix,

		AMQPExchange: c.AMQPExchange,
	}
}
