package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default returns a Config with sensible defaults, before env overrides.
func Default() *Config {
	return &Config{
		Database: Database{
			MaxOpenConns: 20,
		},
		Redis: Redis{
			URL:                  "redis://localhost:6379",
			IncomingStream:       "agentic:queue:incoming",
			OutgoingStream:       "agentic:queue:outgoing",
			OutgoingStreamMaxLen: 10000,
			ConsumerGroup:        "agentic_core_group",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads a .env file if present (ignored if missing) and builds a
// Config from environment variables layered over Default().
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.applyEnvOverrides()

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	envStr("DATABASE_URL", &c.Database.DSN)
	envInt("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	envStr("REDIS_URL", &c.Redis.URL)
	envStr("INCOMING_STREAM", &c.Redis.IncomingStream)
	envStr("OUTGOING_STREAM", &c.Redis.OutgoingStream)
	envInt64("OUTGOING_STREAM_MAXLEN", &c.Redis.OutgoingStreamMaxLen)
	envStr("CONSUMER_GROUP", &c.Redis.ConsumerGroup)
	envStr("LOG_LEVEL", &c.Log.Level)
}
