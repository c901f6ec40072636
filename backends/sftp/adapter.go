// Package sftp stores files on a remote host over SSH.
package sftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// ErrHostKeyMismatch is returned when the server key does not match the
// configured fingerprint.
var ErrHostKeyMismatch = errors.New("sftp: host key fingerprint mismatch")

const sniffLen = 3072

// Options holds the connection settings.
type Options struct {
	Host            string
	Port            int
	Username        string
	Password        string
	PrivateKey      string // path to a key file or PEM content
	Passphrase      string
	Root            string
	Timeout         time.Duration
	HostFingerprint string
}

// Adapter implements backends.Adapter over SFTP.
type Adapter struct {
	opts       Options
	prefixer   *pathutil.Prefixer
	visibility backends.UnixVisibility
	logger     *zap.Logger

	mu     sync.Mutex
	ssh    *ssh.Client
	client *sftp.Client
}

// New creates an SFTP adapter. The SSH session is opened on first use.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("host", "username")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	opts := Options{
		Host:            required["host"],
		Port:            disk.Int("port", 22),
		Username:        required["username"],
		Password:        disk.String("password", ""),
		PrivateKey:      disk.String("private_key", ""),
		Passphrase:      disk.String("passphrase", ""),
		Root:            disk.Root(),
		Timeout:         disk.Duration("timeout", 10*time.Second),
		HostFingerprint: disk.String("host_fingerprint", ""),
	}
	if opts.Password == "" && opts.PrivateKey == "" {
		return nil, metadata.Configuration("disk %q: password or private_key is required", disk.Name())
	}

	defaultVisibility, _ := backends.ParseVisibility(disk.DirectoryVisibility())
	if defaultVisibility == "" {
		defaultVisibility, _ = backends.ParseVisibility(disk.Visibility())
	}
	permissions, _ := disk.Options("permissions")["permissions"].(map[string]any)

	return &Adapter{
		opts:       opts,
		prefixer:   pathutil.NewPrefixer(opts.Root, "/"),
		visibility: backends.UnixVisibilityFromMap(permissions, defaultVisibility),
		logger:     logger,
	}, nil
}

// Kind reports the adapter as SFTP storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindSFTP }

func (a *Adapter) connect() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		a.closeLocked()
	}

	auth, err := a.authMethods()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(a.opts.Host, strconv.Itoa(a.opts.Port))
	sshConn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            a.opts.Username,
		Auth:            auth,
		HostKeyCallback: a.hostKeyCallback(),
		Timeout:         a.opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem on %s: %w", addr, err)
	}

	a.logger.Debug("SFTP connection established", zap.String("addr", addr))
	a.ssh = sshConn
	a.client = client
	return client, nil
}

func (a *Adapter) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if a.opts.PrivateKey != "" {
		pem := []byte(a.opts.PrivateKey)
		if !strings.Contains(a.opts.PrivateKey, "PRIVATE KEY") {
			data, err := os.ReadFile(a.opts.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			pem = data
		}

		var signer ssh.Signer
		var err error
		if a.opts.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(a.opts.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if a.opts.Password != "" {
		methods = append(methods, ssh.Password(a.opts.Password))
	}
	return methods, nil
}

func (a *Adapter) hostKeyCallback() ssh.HostKeyCallback {
	if a.opts.HostFingerprint == "" {
		a.logger.Warn("SFTP host key is not pinned", zap.String("host", a.opts.Host))
		return ssh.InsecureIgnoreHostKey()
	}
	expected := strings.TrimPrefix(a.opts.HostFingerprint, "SHA256:")
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if strings.TrimPrefix(ssh.FingerprintSHA256(key), "SHA256:") != expected {
			return fmt.Errorf("%w for %s", ErrHostKeyMismatch, hostname)
		}
		return nil
	}
}

func (a *Adapter) location(path string) string {
	return a.prefixer.PrefixPath(path)
}

// FileExists reports whether a regular file exists at path
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	return a.exists(path, false)
}

// DirectoryExists reports whether a directory exists at path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return a.exists(path, true)
}

func (a *Adapter) exists(path string, dir bool) (bool, error) {
	client, err := a.connect()
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "exists", path, err)
	}
	info, err := client.Stat(a.location(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "exists", path, err)
	}
	return info.IsDir() == dir, nil
}

// Read downloads the whole file
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	stream, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return data, nil
}

// ReadStream opens the remote file
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	client, err := a.connect()
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	file, err := client.Open(a.location(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return file, nil
}

// Write uploads contents
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream uploads the reader's content, creating parent directories
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	if err := a.ensureDirectory(client, pathutil.Dir(path), cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	file, err := client.OpenFile(a.location(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if _, err := file.ReadFrom(r); err != nil {
		file.Close()
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if err := file.Close(); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	if v, ok := backends.ParseVisibility(cfg.String(backends.OptionVisibility, "")); ok {
		if err := client.Chmod(a.location(path), a.visibility.ForFile(v)); err != nil {
			return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
		}
	}
	return nil
}

// Delete removes a file. A missing file is not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	if err := client.Remove(a.location(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes a directory tree. A missing directory is not an error.
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	if err := a.removeAll(client, a.location(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	return nil
}

func (a *Adapter) removeAll(client *sftp.Client, dir string) error {
	entries, err := client.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		child := dir + "/" + entry.Name()
		if entry.IsDir() {
			if err := a.removeAll(client, child); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(child); err != nil {
			return err
		}
	}
	return client.RemoveDirectory(dir)
}

// CreateDirectory creates path and its parents with the directory visibility
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	if err := a.ensureDirectory(client, path, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

func (a *Adapter) ensureDirectory(client *sftp.Client, dir string, cfg backends.Config) error {
	if dir == "" {
		return nil
	}
	location := a.location(dir)
	if info, err := client.Stat(location); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists as file", dir)
		}
		return nil
	}
	if err := client.MkdirAll(location); err != nil {
		return err
	}
	v := cfg.Visibility(backends.OptionDirectoryVisibility, a.visibility.Default)
	return client.Chmod(location, a.visibility.ForDirectory(v))
}

// SetVisibility changes the permission bits of path
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	info, err := a.stat("setVisibility", metadata.ErrUnableToSetVisibility, path)
	if err != nil {
		return err
	}
	mode := a.visibility.ForFile(visibility)
	if info.IsDir() {
		mode = a.visibility.ForDirectory(visibility)
	}
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	if err := client.Chmod(a.location(path), mode); err != nil {
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility derives visibility from the remote permission bits
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("visibility", metadata.ErrUnableToRetrieveMetadata, path)
	if err != nil {
		return nil, err
	}
	return a.attributes(path, info), nil
}

// MimeType detects the type from the extension or the first bytes
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("mimeType", metadata.ErrUnableToRetrieveMetadata, path)
	if err != nil {
		return nil, err
	}
	attrs := a.attributes(path, info)

	if attrs.MimeType = backends.MimeTypeByExtension(path); attrs.MimeType != "" {
		return attrs, nil
	}

	stream, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, err)
	}
	defer stream.Close()
	head, err := io.ReadAll(io.LimitReader(stream, sniffLen))
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, err)
	}
	attrs.MimeType = backends.ContentType(path, head, nil)
	return attrs, nil
}

// LastModified returns the remote modification time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("lastModified", metadata.ErrUnableToRetrieveMetadata, path)
	if err != nil {
		return nil, err
	}
	return a.attributes(path, info), nil
}

// FileSize returns the remote file size
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("fileSize", metadata.ErrUnableToRetrieveMetadata, path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "fileSize", path, errors.New("not a file"))
	}
	return a.attributes(path, info), nil
}

// ListContents reads directories breadth first
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return func(yield func(*metadata.Attributes, error) bool) {
		client, err := a.connect()
		if err != nil {
			yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", path, err))
			return
		}

		pending := []string{strings.Trim(path, "/")}
		for len(pending) > 0 {
			dir := pending[0]
			pending = pending[1:]

			entries, err := client.ReadDir(a.location(dir))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", dir, err))
				return
			}

			for _, info := range entries {
				logical := pathutil.Join(dir, info.Name())
				if info.IsDir() && deep {
					pending = append(pending, logical)
				}
				if !yield(a.attributes(logical, info), nil) {
					return
				}
			}
		}
	}
}

// Move renames src to dst
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	client, err := a.connect()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := a.ensureDirectory(client, pathutil.Dir(dst), cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := client.PosixRename(a.location(src), a.location(dst)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return metadata.Missing(metadata.ErrUnableToMove, "move", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy streams src into dst through this host
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	stream, err := a.ReadStream(ctx, src)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	defer stream.Close()

	if err := a.WriteStream(ctx, dst, stream, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close ends the SFTP session and the SSH connection
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *Adapter) closeLocked() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.ssh != nil {
		errs = append(errs, a.ssh.Close())
		a.ssh = nil
	}
	return errors.Join(errs...)
}

func (a *Adapter) stat(op string, kind error, path string) (os.FileInfo, error) {
	client, err := a.connect()
	if err != nil {
		return nil, metadata.NewError(kind, op, path, err)
	}
	info, err := client.Stat(a.location(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, metadata.Missing(kind, op, path, err)
		}
		return nil, metadata.NewError(kind, op, path, err)
	}
	return info, nil
}

func (a *Adapter) attributes(path string, info os.FileInfo) *metadata.Attributes {
	if info.IsDir() {
		attrs := metadata.NewDirectory(path, info.ModTime())
		attrs.Visibility = string(a.visibility.InverseForDirectory(info.Mode()))
		return attrs
	}
	attrs := metadata.NewFile(path, info.Size(), info.ModTime())
	attrs.Visibility = string(a.visibility.InverseForFile(info.Mode()))
	return attrs
}
