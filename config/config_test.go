package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "STORE_DRIVER", "DATA_DIR",
		"PRESENCE_HEARTBEAT_INTERVAL", "PRESENCE_EXPIRY_WINDOW", "PRESENCE_SWEEP_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreDriverFile, cfg.StoreDriver)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 4*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.ExpiryWindow)
	assert.Equal(t, 3*time.Second, cfg.SweepInterval)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongodb")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverPostgres)
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRejectsHeartbeatSlowerThanExpiry(t *testing.T) {
	t.Setenv("PRESENCE_HEARTBEAT_INTERVAL", "15s")
	_, err := Load()
	assert.ErrorContains(t, err, "PRESENCE_HEARTBEAT_INTERVAL")
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "three seconds")
	_, err := Load()
	assert.ErrorContains(t, err, "PRESENCE_SWEEP_INTERVAL")
}
