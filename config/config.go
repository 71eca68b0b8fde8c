package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	ServerPort  string
	StoreDriver string
	DataDir     string
	DatabaseURL string
	RedisURL    string

	HeartbeatInterval time.Duration
	ExpiryWindow      time.Duration
	SweepInterval     time.Duration
}

func Load() (*Config, error) {
	heartbeat, err := getDuration("PRESENCE_HEARTBEAT_INTERVAL", "4s")
	if err != nil {
		return nil, err
	}
	expiry, err := getDuration("PRESENCE_EXPIRY_WINDOW", "10s")
	if err != nil {
		return nil, err
	}
	sweep, err := getDuration("PRESENCE_SWEEP_INTERVAL", "3s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		StoreDriver:       getEnv("STORE_DRIVER", StoreDriverFile),
		DataDir:           getEnv("DATA_DIR", "data"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		HeartbeatInterval: heartbeat,
		ExpiryWindow:      expiry,
		SweepInterval:     sweep,
	}

	if cfg.StoreDriver != StoreDriverFile && cfg.StoreDriver != StoreDriverPostgres {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	if cfg.HeartbeatInterval >= cfg.ExpiryWindow {
		return nil, errors.New("PRESENCE_HEARTBEAT_INTERVAL must be shorter than PRESENCE_EXPIRY_WINDOW")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
