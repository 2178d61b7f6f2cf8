package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds application configuration
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Escalation   EscalationConfig
	Notification NotificationConfig
	Auth         AuthConfig
	Logging      LoggingConfig
	Metrics      MetricsConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DatabaseURL     string // DATABASE_URL - takes precedence over individual vars
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool // DB_RUN_MIGRATIONS: apply embedded migrations on startup
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// EscalationConfig controls the sweep
type EscalationConfig struct {
	Enabled     bool          // ESCALATION_ENABLED
	Schedule    string        // ESCALATION_SCHEDULE: cron spec, e.g. "@every 5m" or "*/5 * * * *"
	RunOnStart  bool          // ESCALATION_RUN_ON_START
	CaseTimeout time.Duration // ESCALATION_CASE_TIMEOUT: per-case processing budget inside a sweep

	BusinessHours BusinessHoursConfig
}

// BusinessHoursConfig defines the working calendar for business-hours-only rules
type BusinessHoursConfig struct {
	Start    string   // BUSINESS_HOURS_START "08:00"
	End      string   // BUSINESS_HOURS_END "17:00"
	Days     []string // BUSINESS_DAYS "mon,tue,wed,thu,fri"
	Timezone string   // BUSINESS_TIMEZONE "UTC"
	Holidays []string // BUSINESS_HOLIDAYS "2024-12-25,2025-01-01"
}

// NotificationConfig holds channel credentials and queue tuning
type NotificationConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	// RedirectTo sends all email to one inbox (staging)
	RedirectTo string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	WorkerInterval    time.Duration
	BatchSize         int
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	SendsPerSecond    float64
	SendBurst         int

	BreakerMaxFailures uint32        // NOTIFY_BREAKER_MAX_FAILURES: consecutive failures before opening
	BreakerOpenTimeout time.Duration // NOTIFY_BREAKER_OPEN_TIMEOUT
}

// AuthConfig holds admin API authentication settings
type AuthConfig struct {
	AdminToken string // ADMIN_TOKEN: static bearer token
	JWTSecret  string // JWT_SECRET: HS256 secret for admin JWTs
	JWTIssuer  string
	JWTTTL     time.Duration
}

// LoggingConfig controls logrus output
type LoggingConfig struct {
	Level      string // LOG_LEVEL
	Format     string // LOG_FORMAT: json | text
	File       string // LOG_FILE: enables rotated file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MetricsConfig controls the /metrics endpoint
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LoadConfig loads configuration from environment variables.
// Supports DATABASE_URL or individual DB_* variables (for local dev).
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			Host:            getEnv("DB_HOST", "127.0.0.1"),
			Port:            getEnv("DB_PORT", "3306"),
			User:            os.Getenv("DB_USER"),
			Password:        os.Getenv("DB_PASSWORD"),
			DBName:          os.Getenv("DB_NAME"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			RunMigrations:   getEnvBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("PORT", getEnv("SERVER_PORT", "8080")),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Escalation: EscalationConfig{
			Enabled:     getEnvBool("ESCALATION_ENABLED", true),
			Schedule:    getEnv("ESCALATION_SCHEDULE", "@every 5m"),
			RunOnStart:  getEnvBool("ESCALATION_RUN_ON_START", false),
			CaseTimeout: getEnvDuration("ESCALATION_CASE_TIMEOUT", 10*time.Second),
			BusinessHours: BusinessHoursConfig{
				Start:    getEnv("BUSINESS_HOURS_START", "08:00"),
				End:      getEnv("BUSINESS_HOURS_END", "17:00"),
				Days:     getEnvList("BUSINESS_DAYS", []string{"mon", "tue", "wed", "thu", "fri"}),
				Timezone: getEnv("BUSINESS_TIMEZONE", "UTC"),
				Holidays: getEnvList("BUSINESS_HOLIDAYS", nil),
			},
		},
		Notification: NotificationConfig{
			SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
			FromEmail:          getEnv("EMAIL_FROM", "no-reply@casewatch.local"),
			FromName:           getEnv("EMAIL_FROM_NAME", "Casewatch"),
			RedirectTo:         os.Getenv("EMAIL_REDIRECT_TO"),
			TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber:   os.Getenv("TWILIO_FROM_NUMBER"),
			WorkerInterval:     getEnvDuration("NOTIFY_WORKER_INTERVAL", 30*time.Second),
			BatchSize:          getEnvInt("NOTIFY_BATCH_SIZE", 100),
			MaxRetries:         getEnvInt("NOTIFY_MAX_RETRIES", 3),
			InitialRetryDelay:  getEnvDuration("NOTIFY_INITIAL_RETRY_DELAY", time.Minute),
			MaxRetryDelay:      getEnvDuration("NOTIFY_MAX_RETRY_DELAY", 30*time.Minute),
			SendsPerSecond:     getEnvFloat("NOTIFY_SENDS_PER_SECOND", 5),
			SendBurst:          getEnvInt("NOTIFY_SEND_BURST", 10),
			BreakerMaxFailures: uint32(getEnvInt("NOTIFY_BREAKER_MAX_FAILURES", 5)),
			BreakerOpenTimeout: getEnvDuration("NOTIFY_BREAKER_OPEN_TIMEOUT", time.Minute),
		},
		Auth: AuthConfig{
			AdminToken: os.Getenv("ADMIN_TOKEN"),
			JWTSecret:  os.Getenv("JWT_SECRET"),
			JWTIssuer:  getEnv("JWT_ISSUER", "casewatch"),
			JWTTTL:     getEnvDuration("JWT_TTL", 12*time.Hour),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

// DSN returns the MySQL data source name. DATABASE_URL wins when set.
func (c DatabaseConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + c.Port
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	// RowsAffected counts matched rows so an unchanged UPDATE is not mistaken for a missing row
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Validate rejects configuration the engine cannot run with
func (c *Config) Validate() error {
	if c.Database.DatabaseURL == "" && (c.Database.User == "" || c.Database.DBName == "") {
		return fmt.Errorf("database not configured: set DATABASE_URL or DB_USER and DB_NAME")
	}
	if c.Escalation.CaseTimeout <= 0 {
		return fmt.Errorf("ESCALATION_CASE_TIMEOUT must be positive")
	}
	return c.Escalation.BusinessHours.Validate()
}

// Validate checks the business-hours window, working days, timezone and holiday dates
func (b BusinessHoursConfig) Validate() error {
	start, err := ParseClock(b.Start)
	if err != nil {
		return fmt.Errorf("BUSINESS_HOURS_START: %w", err)
	}
	end, err := ParseClock(b.End)
	if err != nil {
		return fmt.Errorf("BUSINESS_HOURS_END: %w", err)
	}
	if end <= start {
		return fmt.Errorf("business hours end %s must be after start %s", b.End, b.Start)
	}
	if len(b.Days) == 0 {
		return fmt.Errorf("BUSINESS_DAYS must list at least one day")
	}
	for _, d := range b.Days {
		if _, err := ParseWeekday(d); err != nil {
			return err
		}
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	for _, h := range b.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("BUSINESS_HOLIDAYS: invalid date %q", h)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekday parses a three-letter day name
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) > 3 {
		key = key[:3]
	}
	if d, ok := weekdays[key]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
