package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ebogdum/diskfs/metadata"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// DISKFS_DISKS_S3_SECRET sets disks.s3.secret.
const EnvPrefix = "DISKFS_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile is LoadConfig with an explicit config file path.
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		configFiles := []string{"config.yaml", "config.yml", "config.json"}
		for _, configFile := range configFiles {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Disks) == 0 {
		cfg.Disks = map[string]map[string]any{cfg.Default: defaultDisk()}
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		return json.Parser()
	}
	return yaml.Parser()
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Default == "" {
		return metadata.Configuration("default disk is required")
	}

	if _, ok := cfg.Disks[cfg.Default]; !ok {
		return metadata.Configuration("default disk %q is not defined", cfg.Default)
	}

	if cfg.Server.SigningKey != "" && cfg.Server.ExternalURL == "" {
		return metadata.Configuration("server.external_url is required when server.signing_key is set")
	}

	for name := range cfg.Disks {
		disk, _ := cfg.Disk(name)
		if v := disk.Visibility(); v != "" && v != "public" && v != "private" {
			return metadata.Configuration("disks.%s.visibility must be public or private, got %q", name, v)
		}
		if v := disk.DirectoryVisibility(); v != "" && v != "public" && v != "private" {
			return metadata.Configuration("disks.%s.directory_visibility must be public or private, got %q", name, v)
		}
		if store, ok := disk.Cache(); ok && store.Store != "memory" && store.Store != "redis" {
			return metadata.Configuration("disks.%s.cache.store must be memory or redis, got %q", name, store.Store)
		}
	}

	return nil
}
