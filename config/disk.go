package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Disk is the immutable configuration of one named disk. Common keys have
// typed accessors; backend credentials are read with String/Int/Bool.
type Disk struct {
	name string
	k    *koanf.Koanf
}

// NewDisk builds a Disk from a raw option map. The map is copied.
func NewDisk(name string, raw map[string]any) Disk {
	k := koanf.New(".")
	// confmap only fails on parser errors, which a nil parser cannot produce
	_ = k.Load(confmap.Provider(copyMap(raw), "."), nil)
	return Disk{name: name, k: k}
}

// Name returns the disk name.
func (d Disk) Name() string { return d.name }

// Type returns the backend kind, defaulting to "local".
func (d Disk) Type() string {
	return strings.ToLower(d.String("type", "local"))
}

// Root returns the physical root of the disk.
func (d Disk) Root() string { return d.String("root", "") }

// Prefix returns the extra logical prefix layered over the root.
func (d Disk) Prefix() string { return d.String("prefix", "") }

// Separator returns the directory separator override, if any.
func (d Disk) Separator() string { return d.String("directory_separator", "") }

// Visibility returns the default visibility for new files.
func (d Disk) Visibility() string { return d.String("visibility", "") }

// DirectoryVisibility returns the default visibility for new directories.
func (d Disk) DirectoryVisibility() string { return d.String("directory_visibility", "") }

// Throw reports whether adapter failures are returned to callers.
func (d Disk) Throw() bool { return d.Bool("throw", false) }

// ReadOnly reports whether writes are rejected.
func (d Disk) ReadOnly() bool { return d.Bool("read-only", false) }

// URL returns the configured public base URL.
func (d Disk) URL() string { return d.String("url", "") }

// TemporaryURL returns the base used to rewrite presigned URLs.
func (d Disk) TemporaryURL() string { return d.String("temporary_url", "") }

// Cache returns the metadata cache settings; ok is false when disabled.
func (d Disk) Cache() (CacheConfig, bool) {
	if !d.k.Exists("cache") {
		return CacheConfig{}, false
	}

	cfg := CacheConfig{
		Store:  "memory",
		Prefix: DefaultCachePrefix + d.name + ":",
		Expire: DefaultCacheExpire,
	}

	switch v := d.k.Get("cache").(type) {
	case bool:
		return cfg, v
	case string:
		if v == "" {
			return CacheConfig{}, false
		}
		cfg.Store = v
		return cfg, true
	}

	cfg.Store = d.String("cache.store", cfg.Store)
	cfg.Prefix = d.String("cache.prefix", cfg.Prefix)
	cfg.Expire = d.Duration("cache.expire", cfg.Expire)
	return cfg, true
}

// Has reports whether key is set.
func (d Disk) Has(key string) bool { return d.k.Exists(key) }

// String returns the string value for key or fallback.
func (d Disk) String(key, fallback string) string {
	if !d.k.Exists(key) {
		return fallback
	}
	if v := d.k.String(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value for key or fallback.
func (d Disk) Int(key string, fallback int) int {
	if !d.k.Exists(key) {
		return fallback
	}
	return d.k.Int(key)
}

// Bool returns the boolean value for key or fallback.
func (d Disk) Bool(key string, fallback bool) bool {
	if !d.k.Exists(key) {
		return fallback
	}
	return d.k.Bool(key)
}

// Duration returns a duration for key. Bare numbers are seconds.
func (d Disk) Duration(key string, fallback time.Duration) time.Duration {
	if !d.k.Exists(key) {
		return fallback
	}
	switch v := d.k.Get(key).(type) {
	case int, int64, float64:
		return time.Duration(d.k.Float64(key) * float64(time.Second))
	case string:
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
		if secs := d.k.Float64(key); secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	case time.Duration:
		return v
	}
	return fallback
}

// Require returns the string values for keys, failing on the first missing one.
func (d Disk) Require(keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v := d.String(key, "")
		if v == "" {
			return nil, fmt.Errorf("disk %q: %s is required", d.name, key)
		}
		out[key] = v
	}
	return out, nil
}

// Options returns the subset of keys that are set, as a plain map.
func (d Disk) Options(keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if d.k.Exists(key) {
			out[key] = d.k.Get(key)
		}
	}
	return out
}

// Raw returns a copy of the whole option map.
func (d Disk) Raw() map[string]any {
	return d.k.Raw()
}

// CacheConfig configures the caching guard of a disk.
type CacheConfig struct {
	Store  string        // "memory" or "redis"
	Prefix string        // key prefix inside the store
	Expire time.Duration // entry TTL
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
