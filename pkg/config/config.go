package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJWTSecret signs tokens when JWT_SECRET is unset. It is only fit for local runs.
const DefaultJWTSecret = "secret"

// Config holds application configuration
type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	JWTSecret     string
	TokenTTL      time.Duration
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
	JobSchedule   string
	ReminderDays  int
	ProductsFile  string
	AdminEmail    string
	AdminPassword string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "./loankart.db"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", DefaultJWTSecret),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "no-reply@loankart.local"),
		JobSchedule:   getEnv("JOB_SCHEDULE", "0 6 * * *"),
		ProductsFile:  getEnv("PRODUCTS_FILE", ""),
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be a positive duration")
	}
	cfg.TokenTTL = ttl

	days, err := strconv.Atoi(getEnv("REMINDER_DAYS", "3"))
	if err != nil || days < 0 {
		return nil, fmt.Errorf("REMINDER_DAYS must be a non-negative integer")
	}
	cfg.ReminderDays = days

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	if _, err := cron.ParseStandard(cfg.JobSchedule); err != nil {
		return nil, fmt.Errorf("JOB_SCHEDULE is not a valid cron spec: %w", err)
	}

	return cfg, nil
}

// SMTPConfigured reports whether outgoing mail can be delivered.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// InsecureJWTSecret reports whether tokens are signed with the built-in default key.
func (c *Config) InsecureJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}
