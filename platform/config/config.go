// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides the shared Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for SMTP email delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketWebhookArchive() string
	IsMinIOEnabled() bool
}

// PrimaryCalendarConfig provides settings for the organizational calendar API.
type PrimaryCalendarConfig interface {
	GetPrimaryCalendarURL() string
	GetPrimaryCalendarToken() string
	GetPrimaryCalendarTimeout() time.Duration
}

// CalendlyConfig provides settings for the external invitee-facing scheduler.
type CalendlyConfig interface {
	GetCalendlyAPIURL() string
	GetCalendlyToken() string
	GetCalendlyEventTypeURI() string
	GetCalendlySigningKey() string
	GetCalendlyTimeout() time.Duration
	GetWebhookDedupeTTL() time.Duration
}

// BookingConfig provides settings for the appointment booking coordinator.
type BookingConfig interface {
	GetSlotDuration() time.Duration
	GetReminderLeadTime() time.Duration
}

// AuditConfig provides the timezone used to render audit trail timestamps.
type AuditConfig interface {
	GetAuditLocation() *time.Location
}

// MatchLogConfig provides retention settings for the calendar match log.
type MatchLogConfig interface {
	GetMatchLogRetention() time.Duration
	GetMatchLogCleanupSpec() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	MigrationsEnabled      bool
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	AppBaseURL             string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromName          string
	EmailFromAddress       string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinIOMaxFileSize       int64
	MinioBucketWebhooks    string
	PrimaryCalendarURL     string
	PrimaryCalendarToken   string
	PrimaryCalendarTimeout time.Duration
	CalendlyAPIURL         string
	CalendlyToken          string
	CalendlyEventTypeURI   string
	CalendlySigningKey     string
	CalendlyTimeout        time.Duration
	WebhookDedupeTTL       time.Duration
	SlotDuration           time.Duration
	ReminderLeadTime       time.Duration
	AuditTimezone          string
	MatchLogRetention      time.Duration
	MatchLogCleanupSpec    string

	auditLocation *time.Location
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig / SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string             { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string            { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string            { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                 { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64           { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketWebhookArchive() string { return c.MinioBucketWebhooks }
func (c *Config) IsMinIOEnabled() bool                 { return c.MinIOEndpoint != "" }

// PrimaryCalendarConfig implementation
func (c *Config) GetPrimaryCalendarURL() string            { return c.PrimaryCalendarURL }
func (c *Config) GetPrimaryCalendarToken() string          { return c.PrimaryCalendarToken }
func (c *Config) GetPrimaryCalendarTimeout() time.Duration { return c.PrimaryCalendarTimeout }

// CalendlyConfig implementation
func (c *Config) GetCalendlyAPIURL() string          { return c.CalendlyAPIURL }
func (c *Config) GetCalendlyToken() string           { return c.CalendlyToken }
func (c *Config) GetCalendlyEventTypeURI() string    { return c.CalendlyEventTypeURI }
func (c *Config) GetCalendlySigningKey() string      { return c.CalendlySigningKey }
func (c *Config) GetCalendlyTimeout() time.Duration  { return c.CalendlyTimeout }
func (c *Config) GetWebhookDedupeTTL() time.Duration { return c.WebhookDedupeTTL }

// BookingConfig implementation
func (c *Config) GetSlotDuration() time.Duration     { return c.SlotDuration }
func (c *Config) GetReminderLeadTime() time.Duration { return c.ReminderLeadTime }

// MatchLogConfig implementation
func (c *Config) GetMatchLogRetention() time.Duration { return c.MatchLogRetention }
func (c *Config) GetMatchLogCleanupSpec() string      { return c.MatchLogCleanupSpec }

// AuditConfig implementation
func (c *Config) GetAuditLocation() *time.Location {
	if c.auditLocation == nil {
		return time.UTC
	}
	return c.auditLocation
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		MigrationsEnabled:      strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:             getEnv("APP_BASE_URL", "http://localhost:5173"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailEnabled:           emailEnabled && smtpHost != "",
		SMTPHost:               smtpHost,
		SMTPPort:               mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Sales CRM"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		MinIOEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:            strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:       mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "10485760")),
		MinioBucketWebhooks:    getEnv("MINIO_BUCKET_WEBHOOK_ARCHIVE", "calendar-webhooks"),
		PrimaryCalendarURL:     getEnv("PRIMARY_CALENDAR_URL", ""),
		PrimaryCalendarToken:   getEnv("PRIMARY_CALENDAR_TOKEN", ""),
		PrimaryCalendarTimeout: mustDuration(getEnv("PRIMARY_CALENDAR_TIMEOUT", "15s")),
		CalendlyAPIURL:         getEnv("CALENDLY_API_URL", "https://api.calendly.com"),
		CalendlyToken:          getEnv("CALENDLY_TOKEN", ""),
		CalendlyEventTypeURI:   getEnv("CALENDLY_EVENT_TYPE_URI", ""),
		CalendlySigningKey:     getEnv("CALENDLY_WEBHOOK_SIGNING_KEY", ""),
		CalendlyTimeout:        mustDuration(getEnv("CALENDLY_TIMEOUT", "10s")),
		WebhookDedupeTTL:       mustDuration(getEnv("WEBHOOK_DEDUPE_TTL", "72h")),
		SlotDuration:           mustDuration(getEnv("BOOKING_SLOT_DURATION", "30m")),
		ReminderLeadTime:       mustDuration(getEnv("BOOKING_REMINDER_LEAD_TIME", "1h")),
		AuditTimezone:          getEnv("AUDIT_TIMEZONE", "Europe/Berlin"),
		MatchLogRetention:      mustDuration(getEnv("MATCH_LOG_RETENTION", "2160h")),
		MatchLogCleanupSpec:    getEnv("MATCH_LOG_CLEANUP_SCHEDULE", "30 3 * * *"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.PrimaryCalendarURL == "" {
		return nil, fmt.Errorf("PRIMARY_CALENDAR_URL is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SlotDuration <= 0 {
		return nil, fmt.Errorf("BOOKING_SLOT_DURATION must be a positive duration")
	}

	loc, err := time.LoadLocation(cfg.AuditTimezone)
	if err != nil {
		return nil, fmt.Errorf("AUDIT_TIMEZONE is invalid: %w", err)
	}
	cfg.auditLocation = loc

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
