// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/weihanlu/investrack/internal/domain"
)

// minJWTSecretBytes is the minimum length accepted for the token secret
// consumed by the auth middleware.
const minJWTSecretBytes = 32

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the sqlite database and scratch files
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseURL    string // Postgres DSN when DatabaseDriver is "postgres"
	HomeCurrency   domain.Currency
	JWTSecret      string
	LogLevel       string
	Port           int
	DevMode        bool
	TWSEDailyLimit int // Daily request ceiling for the TWSE source
	Backup         *BackupConfig
}

// BackupConfig holds S3 backup settings. Backups are disabled when the
// bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // S3-compatible endpoint; empty means AWS default
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HomeCurrency:   domain.Currency(getEnv("HOME_CURRENCY", string(domain.HomeCurrencyDefault))),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		TWSEDailyLimit: getEnvAsInt("TWSE_DAILY_LIMIT", 500),
		Backup:         loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		// File path derived from DataDir; nothing else required.
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (want sqlite or postgres)", c.DatabaseDriver)
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < minJWTSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minJWTSecretBytes, len(c.JWTSecret))
	}

	if c.HomeCurrency == "" {
		return fmt.Errorf("HOME_CURRENCY must not be empty")
	}

	return nil
}

// SQLitePath returns the sqlite database file path under the data directory.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "investrack.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}
