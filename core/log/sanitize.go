package log

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// SanitizationMode controls how file paths are rendered in logs
type SanitizationMode int

const (
	// ProductionMode hashes paths
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated paths
	DevelopmentMode
	// DebugMode shows full paths
	DebugMode
)

var currentMode = DebugMode

func init() {
	if mode := os.Getenv("DISKFS_LOG_MODE"); mode != "" {
		SetMode(ParseMode(mode))
	}
}

// ParseMode maps "production", "development" or "debug" to a mode.
// Unknown values select ProductionMode.
func ParseMode(mode string) SanitizationMode {
	switch strings.ToLower(mode) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode changes the process-wide sanitization mode.
func SetMode(mode SanitizationMode) {
	currentMode = mode
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch currentMode {
	case ProductionMode:
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	case DevelopmentMode:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	default:
		return path
	}
}

// Path returns a zap field holding the sanitized path.
func Path(key, path string) zap.Field {
	return zap.String(key, SanitizePath(path))
}
