package backends

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MimeTypeByExtension returns the MIME type based on file extension, or
// "" when the extension is unknown.
func MimeTypeByExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return ""
	}
}

// DetectMimeType prefers the extension table and falls back to sniffing
// the content.
func DetectMimeType(path string, content []byte) string {
	if byExt := MimeTypeByExtension(path); byExt != "" {
		return byExt
	}
	if content == nil {
		return ""
	}
	m := mimetype.Detect(content).String()
	if idx := strings.Index(m, ";"); idx >= 0 {
		m = m[:idx]
	}
	return m
}

// ContentType returns the content type for a write: an explicit mimetype
// option wins, then detection, then application/octet-stream.
func ContentType(path string, content []byte, cfg Config) string {
	if m := cfg.String(OptionMimeType, ""); m != "" {
		return m
	}
	if m := DetectMimeType(path, content); m != "" {
		return m
	}
	return "application/octet-stream"
}
