package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"

	broadcastLocal = "local"
	broadcastNATS  = "nats"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Store string `yaml:"store"`
	Timer struct {
		TickInterval time.Duration `yaml:"tick_interval"`
	} `yaml:"timer"`
	Rooms struct {
		DormancyThreshold time.Duration `yaml:"dormancy_threshold"`
		SweepInterval     time.Duration `yaml:"sweep_interval"`
	} `yaml:"rooms"`
	Gateway struct {
		CommandRate  float64 `yaml:"command_rate"`
		CommandBurst int     `yaml:"command_burst"`
	} `yaml:"gateway"`
	NATS struct {
		BroadcastMode string `yaml:"broadcast_mode"`
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Store = storeMemory
	c.Timer.TickInterval = time.Second
	c.Rooms.DormancyThreshold = 24 * time.Hour
	c.Rooms.SweepInterval = 10 * time.Minute
	c.Gateway.CommandRate = 5
	c.Gateway.CommandBurst = 10
	c.NATS.BroadcastMode = broadcastLocal
	c.NATS.URL = "nats://localhost:4222"
	c.NATS.StreamName = "ROOM_EVENTS"
	return &c
}

// loadConfig reads the optional YAML file at path and applies environment
// overrides on top.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Store = getEnv("STORE", config.Store)
	config.Timer.TickInterval = getEnvAsDuration("TICK_INTERVAL", config.Timer.TickInterval)
	config.Rooms.DormancyThreshold = getEnvAsDuration("DORMANCY_THRESHOLD", config.Rooms.DormancyThreshold)
	config.Rooms.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", config.Rooms.SweepInterval)
	config.Gateway.CommandBurst = getEnvAsInt("COMMAND_BURST", config.Gateway.CommandBurst)
	config.NATS.BroadcastMode = getEnv("BROADCAST_MODE", config.NATS.BroadcastMode)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Store != storeMemory && c.Store != storePostgres {
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.NATS.BroadcastMode != broadcastLocal && c.NATS.BroadcastMode != broadcastNATS {
		return fmt.Errorf("unknown broadcast mode %q", c.NATS.BroadcastMode)
	}
	if c.Timer.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
