// Package config provides configuration management for diskfs.
// It loads the application settings and the named disk definitions from
// YAML/JSON files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Default string                    `koanf:"default"`
	Log     LogConfig                 `koanf:"log"`
	Redis   RedisConfig               `koanf:"redis"`
	Server  ServerConfig              `koanf:"server"`
	Disks   map[string]map[string]any `koanf:"disks"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RedisConfig holds the connection used by disks whose cache store is "redis"
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// ServerConfig holds HTTP download server configuration
type ServerConfig struct {
	ListenAddr   string        `koanf:"listen_addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	RateLimit    float64       `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst    int           `koanf:"rate_burst"`
	APIKeys      []string      `koanf:"api_keys"` // empty leaves the download API open
	CertFile     string        `koanf:"cert_file"`
	KeyFile      string        `koanf:"key_file"`
	ExternalURL  string        `koanf:"external_url"` // base of signed download links
	SigningKey   string        `koanf:"signing_key"`  // enables signed links for disks with serve: true
}

// Disk returns the named disk configuration.
func (c *AppConfig) Disk(name string) (Disk, bool) {
	raw, ok := c.Disks[name]
	if !ok {
		return Disk{}, false
	}
	return NewDisk(name, raw), true
}

// DiskNames lists the configured disk names.
func (c *AppConfig) DiskNames() []string {
	names := make([]string, 0, len(c.Disks))
	for name := range c.Disks {
		names = append(names, name)
	}
	return names
}
