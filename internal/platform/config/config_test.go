package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, int64(10000), cfg.Fee.MinOnlineAmount)
	assert.Equal(t, 50, cfg.Fee.MaxGroupSize)
	assert.Equal(t, "Asia/Manila", cfg.Venue.TimeZone)
	assert.Equal(t, "Philippines", cfg.Venue.DomesticCountry)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 120, cfg.RateLimit.APIRequests)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENTRYPASS_DATABASE_URL", "postgres://localhost/entrypass")
	t.Setenv("ENTRYPASS_SERVER_ADDR", ":9090")
	t.Setenv("ENTRYPASS_PAYMONGO_WEBHOOKSECRET", "whsk_test")
	t.Setenv("ENTRYPASS_RATELIMIT_APIREQUESTS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/entrypass", cfg.Database.URL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "whsk_test", cfg.PayMongo.WebhookSecret)
	assert.Zero(t, cfg.RateLimit.APIRequests)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entrypass.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fee:\n  maxgroupsize: 20\nvenue:\n  timezone: UTC\n"), 0o600))
	t.Setenv("ENTRYPASS_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Fee.MaxGroupSize)
	assert.Equal(t, "UTC", cfg.Venue.TimeZone)
}

func TestValidate(t *testing.T) {
	t.Run("unknown time zone", func(t *testing.T) {
		t.Setenv("ENTRYPASS_VENUE_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("empty signing key", func(t *testing.T) {
		cfg := &Config{Fee: FeeConfig{MaxGroupSize: 1}, Venue: VenueConfig{TimeZone: "UTC"}}
		assert.Error(t, cfg.Validate())
	})
}
