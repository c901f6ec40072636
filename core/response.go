package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	coreLog "github.com/ebogdum/diskfs/core/log"
)

// Content dispositions accepted by Response.
const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

// Response streams the file at p to w. Content-Type, Content-Length and
// Content-Disposition are derived from the file unless headers sets them;
// name defaults to the base name of p. Metadata is resolved before the
// stream is opened, since adapters such as FTP hold their connection for
// the life of a stream. Nothing is written to w until the stream is open,
// so a missing file leaves w untouched.
func (d *Driver) Response(ctx context.Context, w http.ResponseWriter, p, name string, headers http.Header, disposition string) error {
	p, err := d.clean("response", p)
	if err != nil {
		return err
	}

	out := http.Header{}
	for key, values := range headers {
		out[key] = values
	}

	if out.Get("Content-Type") == "" {
		mimeType, err := d.MimeType(ctx, p)
		if err != nil {
			return err
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		out.Set("Content-Type", mimeType)
	}

	if out.Get("Content-Length") == "" {
		size, err := d.Size(ctx, p)
		if err != nil {
			return err
		}
		out.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if out.Get("Content-Disposition") == "" {
		if name == "" {
			name = path.Base(p)
		}
		if disposition == "" {
			disposition = DispositionInline
		}
		out.Set("Content-Disposition", ContentDisposition(disposition, name))
	}

	stream, err := strict(d, "readStream", p, func(p string) (io.ReadCloser, error) {
		return d.filesystem.ReadStream(ctx, p)
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for key, values := range out {
		w.Header()[key] = values
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		d.logger.Warn("Streaming response interrupted", coreLog.Path("path", p), zap.Error(err))
		return fmt.Errorf("failed to stream %s: %w", p, err)
	}
	return nil
}

// Download is Response with an attachment disposition.
func (d *Driver) Download(ctx context.Context, w http.ResponseWriter, p, name string, headers http.Header) error {
	return d.Response(ctx, w, p, name, headers, DispositionAttachment)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ContentDisposition formats a Content-Disposition header value with an
// ASCII filename and, when that differs, an RFC 5987 filename*.
func ContentDisposition(disposition, name string) string {
	fallback := FallbackName(name)
	value := fmt.Sprintf(`%s; filename="%s"`, disposition, quoteEscaper.Replace(fallback))
	if fallback != name {
		value += "; filename*=utf-8''" + url.PathEscape(name)
	}
	return value
}

// FallbackName reduces name to printable ASCII: accents are removed,
// other non-ASCII characters and "%" are dropped.
func FallbackName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range stripped {
		if r == '%' || r < 0x20 || r > 0x7e {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
