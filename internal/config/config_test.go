package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "")
	t.Setenv("QUEUE_SLA_DELAY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "tickets", cfg.Queue.Name)
	assert.Equal(t, 15*time.Minute, cfg.Queue.SLADelay)
	assert.Equal(t, 3, cfg.Queue.NotifyAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.NotifyBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Queue.StallTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("QUEUE_CONCURRENCY", "8")
	t.Setenv("QUEUE_POLL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, time.Second, cfg.Queue.PollInterval)
}

func TestLoadRejectsUnknownCacheDriver(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "memcached")

	_, err := Load()
	require.Error(t, err)
}
