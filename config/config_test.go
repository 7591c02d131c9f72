package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("OFFERS_CLAMP_NEGATIVE_PRICES", "")
	t.Setenv("OFFERS_TRACK_UPSELL_IMPRESSIONS", "")
	t.Setenv("CART_TTL_SECONDS", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("KAFKA_PUBLISH_QUEUE_SIZE", "")
	t.Setenv("KAFKA_PUBLISH_TIMEOUT_MS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Offers.ClampNegativePrices)
	assert.True(t, cfg.Offers.TrackUpsellImpressions)
	assert.Equal(t, 48*time.Hour, cfg.Redis.CartTTL)
	assert.Equal(t, 20.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, 1024, cfg.Kafka.PublishQueueSize)
	assert.Equal(t, 2*time.Second, cfg.Kafka.PublishTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("OFFERS_CLAMP_NEGATIVE_PRICES", "false")
	t.Setenv("OFFERS_TRACK_UPSELL_IMPRESSIONS", "0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Offers.ClampNegativePrices)
	assert.False(t, cfg.Offers.TrackUpsellImpressions)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestGetBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, getBool("SOME_FLAG", true))
	assert.False(t, getBool("SOME_FLAG", false))
}
