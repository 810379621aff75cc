// Package config loads service configuration from an optional .env file
// and the environment. Priority: ENV > .env file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// JournalDir enables the Pebble settlement journal when set.
	JournalDir string

	// MintCostSides multiplies quantity × price when minting a pair.
	MintCostSides int64

	MaxOrderQuantity int64
	MaxOrderNotional int64

	AllowReset  bool
	CORSOrigins []string
	LogLevel    slog.Level
}

func Default() Config {
	return Config{
		Port:          "8080",
		CacheTTL:      30 * time.Second,
		MintCostSides: 1,
		CORSOrigins:   []string{"*"},
		LogLevel:      slog.LevelInfo,
	}
}

// Load reads envPath, then applies environment overrides on top of
// Default. An explicit envPath must exist; with an empty envPath ./.env is
// read if present. Malformed values are errors.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.JournalDir = os.Getenv("JOURNAL_DIR")

	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: CACHE_TTL %q: must be a positive duration", v)
		}
		cfg.CacheTTL = d
	}

	var err error
	if cfg.MintCostSides, err = getInt("MINT_COST_SIDES", cfg.MintCostSides); err != nil {
		return Config{}, err
	}
	if cfg.MintCostSides != 1 && cfg.MintCostSides != 2 {
		return Config{}, fmt.Errorf("config: MINT_COST_SIDES must be 1 or 2, got %d", cfg.MintCostSides)
	}
	if cfg.MaxOrderQuantity, err = getInt("MAX_ORDER_QUANTITY", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxOrderNotional, err = getInt("MAX_ORDER_NOTIONAL", 0); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("ALLOW_RESET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ALLOW_RESET %q: %w", v, err)
		}
		cfg.AllowReset = b
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("config: LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s %q: must be a non-negative integer", key, v)
	}
	return n, nil
}
