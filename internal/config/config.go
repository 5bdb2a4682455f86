// Package config loads simulator configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Addr              string
	DatabaseURL       string
	RedisURL          string
	SnapshotFile      string
	MarketTickEvery   time.Duration
	EpochResetEvery   time.Duration
	StartupSeedStocks bool
}

// FromEnv reads configuration from environment variables, applying
// defaults where unset.
func FromEnv() Config {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" && !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	if addr == "" {
		addr = ":8080"
	}

	return Config{
		Addr:              addr,
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		SnapshotFile:      strings.TrimSpace(os.Getenv("SNAPSHOT_FILE")),
		MarketTickEvery:   envDurationDefault("MARKET_TICK_EVERY", 5*time.Second),
		EpochResetEvery:   envDurationDefault("EPOCH_RESET_EVERY", 1000*time.Second),
		StartupSeedStocks: envBoolDefault("STARTUP_SEED_COMPANIES", true),
	}
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
