// Package links signs and verifies time-limited download links served by
// the diskfs HTTP server. Disks configured with serve: true use them as
// their temporary URLs.
package links

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metrics"
)

var (
	ErrLinkInvalid = errors.New("link signature is invalid")
	ErrLinkExpired = errors.New("link has expired")
)

// SignedRoutePrefix is where the server mounts signed downloads.
const SignedRoutePrefix = "/v1/signed"

// Signer creates and validates signed download links.
type Signer struct {
	secretKey []byte
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
}

// NewSigner creates a Signer. baseURL is the externally reachable address
// of the server, e.g. https://files.example.com.
func NewSigner(secretKey, baseURL string, logger *zap.Logger) (*Signer, error) {
	if secretKey == "" {
		return nil, errors.New("secret key cannot be empty")
	}
	if baseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Hash the secret key for HMAC
	h := sha256.Sum256([]byte(secretKey))

	return &Signer{
		secretKey: h[:],
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Sign returns the signature binding disk, path and expiry.
func (s *Signer) Sign(disk, path string, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(disk + "\x00" + canonical(path) + "\x00" + strconv.FormatInt(expiresAt.Unix(), 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// URL returns the signed download link for path on disk.
func (s *Signer) URL(disk, path string, expiresAt time.Time) string {
	segments := strings.Split(canonical(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	query.Set("signature", s.Sign(disk, path, expiresAt))

	metrics.SignedLinksTotal.WithLabelValues("generate", "success").Inc()
	return fmt.Sprintf("%s%s/%s/%s?%s", s.baseURL, SignedRoutePrefix, url.PathEscape(disk), strings.Join(segments, "/"), query.Encode())
}

// Verify checks a signature produced by Sign. expires is the Unix time
// carried in the link.
func (s *Signer) Verify(disk, path string, expires int64, signature string) error {
	expected := s.Sign(disk, path, time.Unix(expires, 0))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Signed link verification failed",
			zap.String("disk", disk),
			coreLog.Path("path", path))
		metrics.SignedLinksTotal.WithLabelValues("verify", "invalid").Inc()
		return ErrLinkInvalid
	}

	if s.now().Unix() > expires {
		metrics.SignedLinksTotal.WithLabelValues("verify", "expired").Inc()
		return ErrLinkExpired
	}

	metrics.SignedLinksTotal.WithLabelValues("verify", "success").Inc()
	return nil
}

// Builder returns a temporary URL builder for disk.
func (s *Signer) Builder(disk string) core.TemporaryURLBuilder {
	return func(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
		return s.URL(disk, path, expiresAt), nil
	}
}

// Install registers the signer as the temporary URL builder of every disk
// configured with serve: true. Disks are resolved eagerly; a disk that is
// later forgotten loses the builder.
func Install(m *core.Manager, cfg *config.AppConfig, s *Signer) error {
	for _, name := range cfg.DiskNames() {
		disk, _ := cfg.Disk(name)
		if !disk.Bool("serve", false) {
			continue
		}

		d, err := m.Disk(name)
		if err != nil {
			return fmt.Errorf("failed to resolve disk %s for signed links: %w", name, err)
		}
		d.BuildTemporaryURLsUsing(s.Builder(name))

		s.logger.Info("Signed temporary URLs enabled", zap.String("disk", name))
	}
	return nil
}

// canonical matches the path the server derives from the link.
func canonical(path string) string {
	if p, err := pathutil.Normalize(path); err == nil {
		return p
	}
	return strings.Trim(path, "/")
}
