// Package localfs stores files on the local disk under a root directory.
package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metadata"
)

// Link handling modes for symbolic links met while listing.
const (
	LinksSkip     = "skip"
	LinksDisallow = "disallow"
)

// ErrSymbolicLink is reported when a listing meets a link and links are disallowed.
var ErrSymbolicLink = errors.New("symbolic link encountered")

// sniffLen is how much of a file is read for content based mime detection.
const sniffLen = 3072

// Adapter implements backends.Adapter for the local filesystem
type Adapter struct {
	root       string
	prefixer   *pathutil.Prefixer
	visibility backends.UnixVisibility
	links      string
	locker     locks.Manager
	logger     *zap.Logger
}

// New creates a local adapter from the disk's root, permissions, visibility
// and links options. A non-nil locker serializes writes per path.
func New(disk config.Disk, locker locks.Manager, logger *zap.Logger) (*Adapter, error) {
	root := disk.Root()
	if root == "" {
		return nil, metadata.Configuration("disk %q: root is required", disk.Name())
	}

	defaultVisibility, _ := backends.ParseVisibility(disk.DirectoryVisibility())
	if defaultVisibility == "" {
		defaultVisibility, _ = backends.ParseVisibility(disk.Visibility())
	}
	permissions, _ := disk.Options("permissions")["permissions"].(map[string]any)
	visibility := backends.UnixVisibilityFromMap(permissions, defaultVisibility)

	if err := os.MkdirAll(root, visibility.DefaultForDirectories()); err != nil {
		return nil, fmt.Errorf("failed to create root path %s: %w", root, err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("root path %s is not accessible: %w", root, err)
	}

	links := strings.ToLower(disk.String("links", LinksDisallow))
	if links != LinksSkip {
		links = LinksDisallow
	}

	return &Adapter{
		root:       root,
		prefixer:   pathutil.NewPrefixer(root, string(filepath.Separator)),
		visibility: visibility,
		links:      links,
		locker:     locker,
		logger:     logger,
	}, nil
}

// Kind reports the adapter as local storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindLocal }

// Root returns the configured root directory.
func (a *Adapter) Root() string { return a.root }

func (a *Adapter) location(path string) string {
	return a.prefixer.PrefixPath(path)
}

// FileExists reports whether a regular file exists at path
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(a.location(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return !info.IsDir(), nil
}

// DirectoryExists reports whether a directory exists at path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(a.location(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return info.IsDir(), nil
}

// Read returns the whole file
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(a.location(path))
	if err != nil {
		return nil, a.readError("read", path, err)
	}
	return data, nil
}

// ReadStream opens the file for reading
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(a.location(path))
	if err != nil {
		return nil, a.readError("readStream", path, err)
	}
	return file, nil
}

// Write creates or truncates the file
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream stages the reader's content in a temporary file next to the
// target and renames it into place, so readers never see a partial file.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	if a.locker != nil {
		unlock, err := locks.Lock(ctx, a.locker, a.location(path))
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
		}
		defer unlock()
	}

	fullPath := a.location(path)
	if err := a.ensureDirectory(filepath.Dir(fullPath), cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	mode := a.visibility.FilePublic
	if v, ok := backends.ParseVisibility(cfg.String(backends.OptionVisibility, "")); ok {
		mode = a.visibility.ForFile(v)
	} else if info, err := os.Stat(fullPath); err == nil {
		mode = info.Mode().Perm()
	}

	file, err := os.CreateTemp(filepath.Dir(fullPath), ".diskfs-*")
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	tmpPath := file.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			a.logger.Debug("Failed to remove staging file", log.Path("path", tmpPath), zap.Error(err))
		}
	}()

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if err := file.Close(); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	return nil
}

// Delete removes a file. A missing file is not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	fullPath := a.location(path)
	info, err := os.Lstat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	if info.IsDir() {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, fmt.Errorf("%s is a directory", path))
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes a directory tree. A missing directory is not an error.
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	fullPath := a.location(path)
	if strings.TrimRight(fullPath, `\/`) == strings.TrimRight(a.root, `\/`) {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, errors.New("refusing to delete the root"))
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	return nil
}

// CreateDirectory creates the directory and its parents
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	fullPath := a.location(path)

	if info, err := os.Stat(fullPath); err == nil {
		if !info.IsDir() {
			return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, errors.New("path exists as file"))
		}
		return nil
	}

	v := cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.visibility.Default))
	mode := a.visibility.ForDirectory(v)
	if err := os.MkdirAll(fullPath, mode); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	if err := os.Chmod(fullPath, mode); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility changes the permission bits of a file or directory
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	fullPath := a.location(path)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}

	mode := a.visibility.ForFile(visibility)
	if info.IsDir() {
		mode = a.visibility.ForDirectory(visibility)
	}
	if err := os.Chmod(fullPath, mode); err != nil {
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility derives visibility from the permission bits
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("visibility", path)
	if err != nil {
		return nil, err
	}
	return a.attributes(path, info), nil
}

// MimeType detects the type from the extension, then from the first bytes
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("mimeType", path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, errors.New("not a file"))
	}

	attrs := a.attributes(path, info)
	attrs.MimeType = backends.MimeTypeByExtension(path)
	if attrs.MimeType == "" {
		head, err := a.head(path)
		if err != nil {
			return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, err)
		}
		attrs.MimeType = backends.ContentType(path, head, nil)
	}
	return attrs, nil
}

// LastModified returns the modification time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("lastModified", path)
	if err != nil {
		return nil, err
	}
	return a.attributes(path, info), nil
}

// FileSize returns the size of a file
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	info, err := a.stat("fileSize", path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "fileSize", path, errors.New("not a file"))
	}
	return a.attributes(path, info), nil
}

// ListContents walks path, descending into subdirectories when deep is set
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	base := a.location(path)

	return func(yield func(*metadata.Attributes, error) bool) {
		if _, err := os.Stat(base); err != nil {
			if !os.IsNotExist(err) {
				yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", path, err))
			}
			return
		}

		err := filepath.WalkDir(base, func(fullPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if fullPath == base {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if d.Type()&fs.ModeSymlink != 0 {
				if a.links == LinksSkip {
					a.logger.Debug("Skipping symbolic link", log.Path("path", fullPath))
					return nil
				}
				return fmt.Errorf("%w: %s", ErrSymbolicLink, a.logicalPath(fullPath))
			}

			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}

			if !yield(a.attributes(a.logicalPath(fullPath), info), nil) {
				return fs.SkipAll
			}
			if d.IsDir() && !deep {
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", path, err))
		}
	}
}

// Move renames src to dst, creating dst's parent directories
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	dstPath := a.location(dst)
	if err := a.ensureDirectory(filepath.Dir(dstPath), cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := os.Rename(a.location(src), dstPath); err != nil {
		if os.IsNotExist(err) {
			return metadata.Missing(metadata.ErrUnableToMove, "move", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy duplicates src to dst keeping the source permissions unless a
// visibility option is given
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	in, err := os.Open(a.location(src))
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}

	if _, ok := cfg[backends.OptionVisibility]; !ok {
		cfg = cfg.Merge(backends.Config{backends.OptionVisibility: a.visibility.InverseForFile(info.Mode())})
	}
	if err := a.WriteStream(ctx, dst, in, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close releases the lock manager if one is configured
func (a *Adapter) Close() error {
	if a.locker != nil {
		return a.locker.Close()
	}
	return nil
}

func (a *Adapter) stat(op, path string) (os.FileInfo, error) {
	info, err := os.Stat(a.location(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
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

func (a *Adapter) head(path string) ([]byte, error) {
	file, err := os.Open(a.location(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (a *Adapter) ensureDirectory(dir string, cfg backends.Config) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists as file", dir)
		}
		return nil
	}
	v := cfg.Visibility(backends.OptionDirectoryVisibility, a.visibility.Default)
	return os.MkdirAll(dir, a.visibility.ForDirectory(v))
}

func (a *Adapter) logicalPath(fullPath string) string {
	return filepath.ToSlash(strings.TrimLeft(a.prefixer.StripPrefix(fullPath), `\/`))
}

func (a *Adapter) readError(op, path string, err error) error {
	if os.IsNotExist(err) {
		return metadata.Missing(metadata.ErrUnableToRead, op, path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRead, op, path, err)
}
