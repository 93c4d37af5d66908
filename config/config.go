// Package config loads the stay engine settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/stay-engine/billing"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	InventoryStore = "store"
	InventoryRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	Port        int
	Environment string

	Store  string
	DBPath string

	RoomInventory string
	Redis         RedisConfig

	AMQPURL      string
	AMQPExchange string

	Currency        billing.Currency
	Timezone        string
	NoShowGrace     time.Duration
	NoShowInterval  time.Duration
	SchedulerEnable bool
	TaxRulesFile    string
	CORSOrigins     []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getenvInt("PORT", 8080),
		Environment:   strings.ToLower(getenv("ENVIRONMENT", "development")),
		Store:         strings.ToLower(getenv("STORE", StoreSQLite)),
		DBPath:        getenv("DB_PATH", "stay.db"),
		RoomInventory: strings.ToLower(getenv("ROOM_INVENTORY", InventoryStore)),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "stay"),
		},
		AMQPURL:         strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:    getenv("AMQP_EXCHANGE", "stay.events"),
		Currency:        billing.Currency(strings.ToUpper(getenv("CURRENCY", string(billing.XAF)))),
		Timezone:        getenv("TIMEZONE", "UTC"),
		NoShowGrace:     getenvDuration("NO_SHOW_GRACE", 24*time.Hour),
		NoShowInterval:  getenvDuration("NO_SHOW_INTERVAL", 15*time.Minute),
		SchedulerEnable: getenvBool("SCHEDULER_ENABLED", true),
		TaxRulesFile:    strings.TrimSpace(os.Getenv("TAX_RULES_FILE")),
		CORSOrigins:     getenvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
	}
}

// Location resolves Timezone. The property's calendar day drives night
// counting and the no-show cutoff.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings main cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("invalid STORE %q (use %q or %q)", c.Store, StoreSQLite, StoreMemory)
	}
	switch c.RoomInventory {
	case InventoryStore, InventoryRedis:
	default:
		return fmt.Errorf("invalid ROOM_INVENTORY %q (use %q or %q)", c.RoomInventory, InventoryStore, InventoryRedis)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.NoShowGrace < 0 {
		return fmt.Errorf("NO_SHOW_GRACE must not be negative")
	}
	if c.SchedulerEnable && c.NoShowInterval <= 0 {
		return fmt.Errorf("NO_SHOW_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
