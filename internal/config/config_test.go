package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsWithMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SeatLockTTL)
	assert.Equal(t, time.Minute, cfg.ReaperInterval)
	assert.Equal(t, "inr", cfg.PaymentCurrency)
	assert.EqualValues(t, 20000, cfg.SeatPriceMinor)
	assert.False(t, cfg.IsProduction())
}

func TestParseReportsAllMissingKeys(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "")

	_, err := Parse()
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SEAT_LOCK_TTL", "90s")
	t.Setenv("REAPER_LEASE", "yes")
	t.Setenv("APP_ENV", "production")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.SeatLockTTL)
	assert.True(t, cfg.ReaperLease)
	assert.True(t, cfg.IsProduction())
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "ten")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_TTL_MIN")
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 2*time.Second, rl.RefillInterval)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestParseDatabaseIgnoresServerKeys(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "cinema")

	cfg, err := ParseDatabase()
	require.NoError(t, err)
	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, "db", cfg.DBHost)
	assert.Equal(t, 5*time.Minute, cfg.SeatLockTTL)

	t.Setenv("DB_NAME", "")
	_, err = ParseDatabase()
	assert.ErrorContains(t, err, "DB_NAME")
}
