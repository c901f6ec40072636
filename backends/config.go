package backends

import (
	"strings"
	"time"
)

// Visibility is the portable access level of a file or directory.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ParseVisibility accepts "public" or "private" in any case.
func ParseVisibility(s string) (Visibility, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Public):
		return Public, true
	case string(Private):
		return Private, true
	}
	return "", false
}

// Option keys understood by the adapters.
const (
	OptionVisibility          = "visibility"
	OptionDirectoryVisibility = "directory_visibility"
	OptionMimeType            = "mimetype"
	OptionCacheControl        = "cache_control"
	OptionContentDisposition  = "content_disposition"
)

// Config carries per-call write options.
type Config map[string]any

// Merge returns a new Config with other's keys layered over c.
func (c Config) Merge(other Config) Config {
	out := make(Config, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the string value for key or fallback.
func (c Config) String(key, fallback string) string {
	switch v := c[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case Visibility:
		if v != "" {
			return string(v)
		}
	}
	return fallback
}

// Visibility returns the visibility stored under key or fallback.
func (c Config) Visibility(key string, fallback Visibility) Visibility {
	if v, ok := ParseVisibility(c.String(key, "")); ok {
		return v
	}
	return fallback
}

// Duration returns the duration stored under key or fallback. Strings are
// parsed with time.ParseDuration, integers are seconds.
func (c Config) Duration(key string, fallback time.Duration) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Option contributes keys to a per-call Config. Both a bare Visibility
// and a whole Config are options.
type Option interface {
	Apply(Config)
}

// Apply sets the visibility option.
func (v Visibility) Apply(c Config) { c[OptionVisibility] = v }

// Apply copies every key of c into dst.
func (c Config) Apply(dst Config) {
	for k, v := range c {
		dst[k] = v
	}
}
