package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENVIRONMENT", "STORE", "DB_PATH", "ROOM_INVENTORY", "AMQP_URL",
		"CURRENCY", "TIMEZONE", "NO_SHOW_GRACE", "NO_SHOW_INTERVAL", "SCHEDULER_ENABLED", "CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "stay.db", cfg.DBPath)
	assert.Equal(t, config.InventoryStore, cfg.RoomInventory)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, billing.XAF, cfg.Currency)
	assert.Equal(t, 24*time.Hour, cfg.NoShowGrace)
	assert.Equal(t, 15*time.Minute, cfg.NoShowInterval)
	assert.True(t, cfg.SchedulerEnable)
	assert.NotEmpty(t, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "Memory")
	t.Setenv("ROOM_INVENTORY", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("TIMEZONE", "Africa/Douala")
	t.Setenv("NO_SHOW_GRACE", "6h")
	t.Setenv("SCHEDULER_ENABLED", "off")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, config.InventoryRedis, cfg.RoomInventory)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, billing.EUR, cfg.Currency)
	assert.Equal(t, 6*time.Hour, cfg.NoShowGrace)
	assert.False(t, cfg.SchedulerEnable)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Douala", loc.String())
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("NO_SHOW_INTERVAL", "soon")

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.NoShowInterval)
}

func TestValidate(t *testing.T) {
	base := config.Config{
		Port: 8080, Store: config.StoreMemory, RoomInventory: config.InventoryStore,
		Timezone: "UTC", NoShowInterval: time.Minute, SchedulerEnable: true,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store", func(c *config.Config) { c.Store = "postgres" }},
		{"inventory", func(c *config.Config) { c.RoomInventory = "etcd" }},
		{"port", func(c *config.Config) { c.Port = 0 }},
		{"timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
		{"grace", func(c *config.Config) { c.NoShowGrace = -time.Hour }},
		{"interval", func(c *config.Config) { c.NoShowInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
