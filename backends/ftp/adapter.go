// Package ftp stores files on an FTP server through a single control
// connection.
package ftp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// ErrVisibilityUnsupported is the cause attached to visibility calls.
var ErrVisibilityUnsupported = errors.New("ftp: visibility is not supported")

const sniffLen = 3072

// Options holds the connection settings.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	Root     string
	Timeout  time.Duration
	Passive  bool
	SSL      bool
}

// Adapter implements backends.Adapter over FTP. All commands share one
// control connection guarded by mu; an open ReadStream holds the
// connection until it is closed.
type Adapter struct {
	opts     Options
	prefixer *pathutil.Prefixer
	logger   *zap.Logger

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// New creates an FTP adapter. The connection is opened on first use.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("host")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	opts := Options{
		Host:     required["host"],
		Port:     disk.Int("port", 21),
		Username: disk.String("username", "anonymous"),
		Password: disk.String("password", ""),
		Root:     disk.Root(),
		Timeout:  disk.Duration("timeout", 90*time.Second),
		Passive:  disk.Bool("passive", true),
		SSL:      disk.Bool("ssl", false),
	}
	if !opts.Passive {
		logger.Warn("Active FTP mode is not available, using passive mode", zap.String("disk", disk.Name()))
	}

	return &Adapter{
		opts:     opts,
		prefixer: pathutil.NewPrefixer(opts.Root, "/"),
		logger:   logger,
	}, nil
}

// Kind reports the adapter as FTP storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindFTP }

// connection returns the live connection, dialing when needed. Callers hold mu.
func (a *Adapter) connection(ctx context.Context) (*ftp.ServerConn, error) {
	if a.conn != nil {
		if err := a.conn.NoOp(); err == nil {
			return a.conn, nil
		}
		a.conn.Quit()
		a.conn = nil
	}

	addr := net.JoinHostPort(a.opts.Host, strconv.Itoa(a.opts.Port))
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(a.opts.Timeout),
		ftp.DialWithContext(ctx),
	}
	if a.opts.SSL {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: a.opts.Host}))
	}

	conn, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.Login(a.opts.Username, a.opts.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to log in to %s: %w", addr, err)
	}

	a.logger.Debug("FTP connection established", zap.String("addr", addr))
	a.conn = conn
	return conn, nil
}

// do runs fn with the connection locked.
func (a *Adapter) do(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.connection(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

func (a *Adapter) location(path string) string {
	return a.prefixer.PrefixPath(path)
}

// FileExists asks for the SIZE of path. A 550 reply means absent; any
// other failure is returned.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		_, err := c.FileSize(a.location(path))
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return exists, nil
}

// DirectoryExists reports whether the server lets us change into path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		cwd, err := c.CurrentDir()
		if err != nil {
			return err
		}
		if err := c.ChangeDir(a.location(path)); err != nil {
			return nil
		}
		exists = true
		return c.ChangeDir(cwd)
	})
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return exists, nil
}

// Read downloads the whole file
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		resp, err := c.Retr(a.location(path))
		if err != nil {
			return err
		}
		defer resp.Close()
		data, err = io.ReadAll(resp)
		return err
	})
	if err != nil {
		return nil, a.readError("read", path, err)
	}
	return data, nil
}

// ReadStream opens a data connection for path. The control connection
// stays locked until the returned stream is closed, so any other call on
// the adapter blocks until then.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	a.mu.Lock()
	conn, err := a.connection(ctx)
	if err != nil {
		a.mu.Unlock()
		return nil, a.readError("readStream", path, err)
	}
	resp, err := conn.Retr(a.location(path))
	if err != nil {
		a.mu.Unlock()
		return nil, a.readError("readStream", path, err)
	}
	return &lockedStream{ReadCloser: resp, unlock: a.mu.Unlock}, nil
}

// Write uploads contents
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream uploads the reader's content, creating parent directories
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		a.makeParents(c, pathutil.Dir(path))
		return c.Stor(a.location(path), r)
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// Delete removes a file. A missing file is not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		if _, err := c.FileSize(a.location(path)); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		return c.Delete(a.location(path))
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes a directory recursively
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	exists, err := a.DirectoryExists(ctx, path)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	if !exists {
		return nil
	}

	err = a.do(ctx, func(c *ftp.ServerConn) error {
		return c.RemoveDirRecur(a.location(path))
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	return nil
}

// CreateDirectory creates path and its parents
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		a.makeParents(c, path)
		return nil
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}

	exists, err := a.DirectoryExists(ctx, path)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	if !exists {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, errors.New("server refused MKD"))
	}
	return nil
}

// SetVisibility is not supported over FTP
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, ErrVisibilityUnsupported)
}

// Visibility is not supported over FTP
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, ErrVisibilityUnsupported)
}

// MimeType guesses from the extension, falling back to the first bytes
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	if m := backends.MimeTypeByExtension(path); m != "" {
		exists, err := a.FileExists(ctx, path)
		if err != nil {
			return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, err)
		}
		if !exists {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, nil)
		}
		return &metadata.Attributes{Path: path, Type: metadata.TypeFile, MimeType: m}, nil
	}

	var head []byte
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		resp, err := c.Retr(a.location(path))
		if err != nil {
			return err
		}
		defer resp.Close()
		head, err = io.ReadAll(io.LimitReader(resp, sniffLen))
		return err
	})
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, err)
	}
	return &metadata.Attributes{Path: path, Type: metadata.TypeFile, MimeType: backends.ContentType(path, head, nil)}, nil
}

// LastModified uses MDTM
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	var modified time.Time
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		var err error
		modified, err = c.GetTime(a.location(path))
		return err
	})
	if err != nil {
		return nil, a.metadataError("lastModified", path, err)
	}
	return metadata.NewFile(path, 0, modified), nil
}

// FileSize uses SIZE
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	var size int64
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		var err error
		size, err = c.FileSize(a.location(path))
		return err
	})
	if err != nil {
		return nil, a.metadataError("fileSize", path, err)
	}
	return metadata.NewFile(path, size, time.Time{}), nil
}

// ListContents lists path with LIST, recursing when deep. Each directory
// is listed under the lock and yielded after it is released.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return func(yield func(*metadata.Attributes, error) bool) {
		pending := []string{strings.Trim(path, "/")}
		for len(pending) > 0 {
			dir := pending[0]
			pending = pending[1:]

			var entries []*ftp.Entry
			err := a.do(ctx, func(c *ftp.ServerConn) error {
				var err error
				entries, err = c.List(a.location(dir))
				return err
			})
			if err != nil {
				yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", dir, err))
				return
			}

			for _, entry := range entries {
				name := entry.Name
				if idx := strings.LastIndex(name, "/"); idx >= 0 {
					name = name[idx+1:]
				}
				if name == "." || name == ".." || name == "" {
					continue
				}

				logical := pathutil.Join(dir, name)
				var attrs *metadata.Attributes
				switch entry.Type {
				case ftp.EntryTypeFolder:
					attrs = metadata.NewDirectory(logical, entry.Time)
					if deep {
						pending = append(pending, logical)
					}
				case ftp.EntryTypeFile:
					attrs = metadata.NewFile(logical, int64(entry.Size), entry.Time)
				default:
					a.logger.Debug("Skipping FTP link entry", log.Path("path", logical))
					continue
				}
				if !yield(attrs, nil) {
					return
				}
			}
		}
	}
}

// Move renames src to dst
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	err := a.do(ctx, func(c *ftp.ServerConn) error {
		a.makeParents(c, pathutil.Dir(dst))
		return c.Rename(a.location(src), a.location(dst))
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy downloads src and uploads it to dst
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	data, err := a.Read(ctx, src)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	if err := a.Write(ctx, dst, data, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close quits the control connection
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Quit()
	a.conn = nil
	return err
}

// makeParents creates every segment of dir. Failures are ignored since
// servers reply 550 for directories that already exist.
func (a *Adapter) makeParents(c *ftp.ServerConn, dir string) {
	if dir == "" {
		return
	}
	current := ""
	for _, segment := range strings.Split(dir, "/") {
		current = pathutil.Join(current, segment)
		_ = c.MakeDir(a.location(current))
	}
}

func (a *Adapter) readError(op, path string, err error) error {
	if isNotFound(err) {
		return metadata.Missing(metadata.ErrUnableToRead, op, path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRead, op, path, err)
}

func (a *Adapter) metadataError(op, path string, err error) error {
	if isNotFound(err) {
		return metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
}

// isNotFound matches the 550 "file unavailable" reply.
func isNotFound(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}

type lockedStream struct {
	io.ReadCloser
	unlock func()
	once   sync.Once
}

func (s *lockedStream) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.unlock)
	return err
}
