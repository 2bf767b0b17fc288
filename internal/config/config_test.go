package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, domain.CurrencyTWD, cfg.HomeCurrency)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 500, cfg.TWSEDailyLimit)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, filepath.Join(cfg.DataDir, "investrack.db"), cfg.SQLitePath())
}

func TestValidateJWTSecretLength(t *testing.T) {
	cfg := &Config{
		DatabaseDriver: "sqlite",
		HomeCurrency:   domain.CurrencyTWD,
		JWTSecret:      "too-short",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")

	cfg.JWTSecret = strings.Repeat("s", 32)
	assert.NoError(t, cfg.Validate())
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := &Config{
		DatabaseDriver: "postgres",
		HomeCurrency:   domain.CurrencyTWD,
	}
	require.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/investrack"
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := &Config{DatabaseDriver: "oracle", HomeCurrency: domain.CurrencyTWD}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown DATABASE_DRIVER")
}
