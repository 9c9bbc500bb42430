package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	cfg := Load()

	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.SnapshotsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REPORT_CACHE_TTL", "30s")
	t.Setenv("SNAPSHOTS_ENABLED", "true")
	t.Setenv("GATEWAY_RATE_LIMIT_RPS", "not-a-number")

	cfg := Load()

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.ReportCacheTTL)
	assert.True(t, cfg.SnapshotsEnabled)
	assert.Equal(t, 50, cfg.GatewayRateLimitRPS)
}
