package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
	assert.Equal(t, 2*time.Minute, cfg.Report.CacheTTL)
	assert.Equal(t, 5.0, cfg.RateLimit.WriteRate)
	assert.Equal(t, 20, cfg.RateLimit.WriteBurst)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RunInterval)
	assert.True(t, cfg.Bootstrap.EnsureDefaultUser)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("AUDIT_WORKERS", "8")
	t.Setenv("REPORT_CACHE_TTL", "30s")
	t.Setenv("RATE_LIMIT_WRITE_RATE", "0.5")
	t.Setenv("SCHEDULER_ENABLED", "off")
	t.Setenv("SCHEDULER_BATCH_SIZE", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 8, cfg.Audit.Workers)
	assert.Equal(t, 30*time.Second, cfg.Report.CacheTTL)
	assert.Equal(t, 0.5, cfg.RateLimit.WriteRate)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize, "unparsable values keep the default")
}
