package config

import "time"

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Default: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // downloads stream through the write deadline
			RateLimit:    100,
			RateBurst:    20,
		},
	}
}

// defaultDisk is used when the configuration defines no disks at all.
func defaultDisk() map[string]any {
	return map[string]any{
		"type": "local",
		"root": "./storage",
	}
}

// Defaults for cache settings.
const (
	DefaultCacheExpire = 5 * time.Minute
	DefaultCachePrefix = "diskfs:"
)
