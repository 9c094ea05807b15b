package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Application settings
	AppEnv        string
	AppPort       int
	FrontendURL   string
	RunMigrations bool

	// Database settings
	DatabaseURL                string
	DatabaseMaxConnections     int
	DatabaseMaxIdleConnections int
	DatabaseConnectionLifetime time.Duration

	// IMAP ingest (§4.C / §6)
	ImapHost        string
	ImapPort        int
	ImapUser        string
	ImapPassword    string
	ImapFolder      string
	ImapPollSeconds int
	ImapSecure      bool

	// Fuzzy product matching (§4.E)
	FuzzyMatchThreshold int

	// PDF blob storage — core records pdf_ref only, bytes land on disk here
	PDFStorageDir string

	// CORS settings
	CORSAllowedOrigins   string
	CORSAllowCredentials bool

	// Logging
	LogLevel  string
	LogFormat string

	// NATS settings — event bus live fan-out transport (durable log is Postgres)
	NATSURL string

	// Shift auto-close ticker (§4.I)
	ShiftAutoCloseCheckInterval time.Duration

	// Request handling
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		AppPort:     getEnvAsInt("APP_PORT", 8080),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		DatabaseURL:                getEnv("DATABASE_URL", ""),
		DatabaseMaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
		DatabaseMaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		DatabaseConnectionLifetime: getEnvAsDuration("DATABASE_CONNECTION_LIFETIME", 5*time.Minute),

		ImapHost:        getEnv("IMAP_HOST", ""),
		ImapPort:        getEnvAsInt("IMAP_PORT", 993),
		ImapUser:        getEnv("IMAP_USER", ""),
		ImapPassword:    getEnv("IMAP_PASSWORD", ""),
		ImapFolder:      getEnv("IMAP_FOLDER", "INBOX"),
		ImapPollSeconds: getEnvAsInt("IMAP_POLL_SECONDS", 15),
		ImapSecure:      getEnvAsBool("IMAP_SECURE", true),

		FuzzyMatchThreshold: getEnvAsInt("FUZZY_MATCH_THRESHOLD", 80),

		PDFStorageDir: getEnv("PDF_STORAGE_DIR", "./pdf-storage"),

		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		CORSAllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		NATSURL: getEnv("NATS_URL", "nats://localhost:4222"),

		ShiftAutoCloseCheckInterval: getEnvAsDuration("SHIFT_AUTOCLOSE_CHECK_INTERVAL", 30*time.Second),

		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		DrainTimeout:   getEnvAsDuration("DRAIN_TIMEOUT", 30*time.Second),

		RunMigrations: getEnvAsBool("RUN_MIGRATIONS", false),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ImapHost == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if c.ImapUser == "" || c.ImapPassword == "" {
		return fmt.Errorf("IMAP_USER and IMAP_PASSWORD are required")
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
