package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Exists reports whether a file or directory exists at path.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	return soft(d, "exists", path, func(path string) (bool, error) {
		ok, err := d.filesystem.FileExists(ctx, path)
		if err != nil || ok {
			return ok, err
		}
		return d.filesystem.DirectoryExists(ctx, path)
	})
}

// Missing is the negation of Exists.
func (d *Driver) Missing(ctx context.Context, path string) (bool, error) {
	ok, err := d.Exists(ctx, path)
	return !ok, err
}

// FileExists reports whether a file exists at path.
func (d *Driver) FileExists(ctx context.Context, path string) (bool, error) {
	return soft(d, "fileExists", path, func(path string) (bool, error) {
		return d.filesystem.FileExists(ctx, path)
	})
}

// FileMissing is the negation of FileExists.
func (d *Driver) FileMissing(ctx context.Context, path string) (bool, error) {
	ok, err := d.FileExists(ctx, path)
	return !ok, err
}

// DirectoryExists reports whether a directory exists at path.
func (d *Driver) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return soft(d, "directoryExists", path, func(path string) (bool, error) {
		return d.filesystem.DirectoryExists(ctx, path)
	})
}

// DirectoryMissing is the negation of DirectoryExists.
func (d *Driver) DirectoryMissing(ctx context.Context, path string) (bool, error) {
	ok, err := d.DirectoryExists(ctx, path)
	return !ok, err
}

// Get returns the contents of a file, or nil when it cannot be read.
func (d *Driver) Get(ctx context.Context, path string) ([]byte, error) {
	return soft(d, "get", path, func(path string) ([]byte, error) {
		return d.filesystem.Read(ctx, path)
	})
}

// Put stores contents at path. contents may be a *File or a
// *multipart.FileHeader (stored with PutFileAs under the generated name
// path/<hash name>), an io.Reader (streamed), or a []byte or string.
// Use PutFile directly to learn the generated name.
func (d *Driver) Put(ctx context.Context, path string, contents any, opts ...Option) (bool, error) {
	switch c := contents.(type) {
	case *File:
		stored, err := d.PutFile(ctx, path, c, opts...)
		return stored != "", err
	case *multipart.FileHeader:
		stored, err := d.PutFile(ctx, path, NewUploadedFile(c), opts...)
		return stored != "", err
	case io.Reader:
		return d.WriteStream(ctx, path, c, opts...)
	case []byte:
		return d.write(ctx, path, c, opts)
	case string:
		return d.write(ctx, path, []byte(c), opts)
	default:
		return false, metadata.Unsupported(fmt.Sprintf("put %T", contents))
	}
}

func (d *Driver) write(ctx context.Context, path string, contents []byte, opts []Option) (bool, error) {
	cfg := d.options(opts)
	delete(cfg, nameRuleKey)
	return soft(d, "put", path, func(path string) (bool, error) {
		return done(d.filesystem.Write(ctx, path, contents, cfg))
	})
}

// PutFile stores file under dir with a generated name and returns the
// stored path, or "" on a swallowed failure. A NameRule or NameFunc option
// selects the name; the default is RuleDate.
func (d *Driver) PutFile(ctx context.Context, dir string, file *File, opts ...Option) (string, error) {
	cfg := d.options(opts)

	var (
		name string
		err  error
	)
	switch rule := cfg[nameRuleKey].(type) {
	case NameFunc:
		name, err = rule(file)
	case NameRule:
		name, err = file.HashName(rule)
	default:
		name, err = file.HashName(RuleDate)
	}
	if err != nil {
		return soft(d, "putFile", dir, func(string) (string, error) {
			return "", metadata.NewError(metadata.ErrUnableToWrite, "putFile", dir, err)
		})
	}

	return d.PutFileAs(ctx, dir, file, name, opts...)
}

// PutFileAs stores file at dir/name and returns the stored path, or "" on
// a swallowed failure. The source is closed on every path.
func (d *Driver) PutFileAs(ctx context.Context, dir string, file *File, name string, opts ...Option) (string, error) {
	path, err := d.clean("putFileAs", pathutil.Join(dir, name))
	if err != nil {
		return "", err
	}

	stream, err := file.Open()
	if err != nil {
		return soft(d, "putFileAs", path, func(string) (string, error) {
			return "", metadata.NewError(metadata.ErrUnableToWrite, "putFileAs", path, err)
		})
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			d.logger.Debug("Failed to close source file", coreLog.Path("path", path), zap.Error(cerr))
		}
	}()

	ok, err := d.WriteStream(ctx, path, stream, opts...)
	if !ok {
		return "", err
	}
	return path, nil
}

// WriteStream stores the reader's content at path.
func (d *Driver) WriteStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error) {
	cfg := d.options(opts)
	delete(cfg, nameRuleKey)
	return soft(d, "writeStream", path, func(path string) (bool, error) {
		return done(d.filesystem.WriteStream(ctx, path, r, cfg))
	})
}

// ReadStream opens path for reading, or returns nil when it cannot be
// opened. The caller closes the stream.
func (d *Driver) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	return soft(d, "readStream", path, func(path string) (io.ReadCloser, error) {
		return d.filesystem.ReadStream(ctx, path)
	})
}

// DefaultSeparator joins prepended and appended data.
func DefaultSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// Prepend writes data followed by the separator before the existing
// content, or just data when the file does not exist. The read and the
// write are separate calls: concurrent writers of the same path race.
func (d *Driver) Prepend(ctx context.Context, path, data string, separator ...string) (bool, error) {
	return d.rewrite(ctx, path, data, separator, func(existing []byte, sep string) []byte {
		return append([]byte(data+sep), existing...)
	})
}

// Append writes the separator and data after the existing content, or
// just data when the file does not exist. Not atomic, as Prepend.
func (d *Driver) Append(ctx context.Context, path, data string, separator ...string) (bool, error) {
	return d.rewrite(ctx, path, data, separator, func(existing []byte, sep string) []byte {
		return append(bytes.Clone(existing), sep+data...)
	})
}

func (d *Driver) rewrite(ctx context.Context, path, data string, separator []string, combine func([]byte, string) []byte) (bool, error) {
	sep := DefaultSeparator()
	if len(separator) > 0 {
		sep = separator[0]
	}

	exists, err := d.FileExists(ctx, path)
	if err != nil {
		return false, err
	}
	if !exists {
		return d.Put(ctx, path, data)
	}

	existing, err := d.Get(ctx, path)
	if err != nil {
		return false, err
	}
	return d.Put(ctx, path, combine(existing, sep))
}

// Delete removes every path, continuing past failures. It reports false
// when any deletion failed; with throw enabled the first failure is
// returned immediately.
func (d *Driver) Delete(ctx context.Context, paths ...string) (bool, error) {
	success := true
	for _, path := range paths {
		ok, err := soft(d, "delete", path, func(path string) (bool, error) {
			return done(d.filesystem.Delete(ctx, path))
		})
		if err != nil {
			return false, err
		}
		success = success && ok
	}
	return success, nil
}

// Copy copies from to to. The copy keeps the source's visibility.
func (d *Driver) Copy(ctx context.Context, from, to string) (bool, error) {
	to, err := d.clean("copy", to)
	if err != nil {
		return false, err
	}
	return soft(d, "copy", from, func(from string) (bool, error) {
		return done(d.filesystem.Copy(ctx, from, to, backends.Config{}))
	})
}

// Move renames from to to.
func (d *Driver) Move(ctx context.Context, from, to string) (bool, error) {
	to, err := d.clean("move", to)
	if err != nil {
		return false, err
	}
	return soft(d, "move", from, func(from string) (bool, error) {
		return done(d.filesystem.Move(ctx, from, to, backends.Config{}))
	})
}

// Size returns the file size in bytes. Failures are always returned.
func (d *Driver) Size(ctx context.Context, path string) (int64, error) {
	return strict(d, "size", path, func(path string) (int64, error) {
		attrs, err := d.filesystem.FileSize(ctx, path)
		if err != nil {
			return 0, err
		}
		return attrs.Size, nil
	})
}

// MimeType returns the file's mime type, or "" when it is unavailable.
func (d *Driver) MimeType(ctx context.Context, path string) (string, error) {
	return soft(d, "mimeType", path, func(path string) (string, error) {
		attrs, err := d.filesystem.MimeType(ctx, path)
		if err != nil {
			return "", err
		}
		return attrs.MimeType, nil
	})
}

// LastModified returns the modification time. Failures are always returned.
func (d *Driver) LastModified(ctx context.Context, path string) (time.Time, error) {
	return strict(d, "lastModified", path, func(path string) (time.Time, error) {
		attrs, err := d.filesystem.LastModified(ctx, path)
		if err != nil {
			return time.Time{}, err
		}
		return attrs.LastModified, nil
	})
}

// GetVisibility returns Public only when the backend reports exactly
// public; every other value is Private. Failures are always returned.
func (d *Driver) GetVisibility(ctx context.Context, path string) (backends.Visibility, error) {
	return strict(d, "getVisibility", path, func(path string) (backends.Visibility, error) {
		attrs, err := d.filesystem.Visibility(ctx, path)
		if err != nil {
			return "", err
		}
		if attrs.Visibility == string(backends.Public) {
			return backends.Public, nil
		}
		return backends.Private, nil
	})
}

// SetVisibility applies visibility to path. Anything but Public is
// applied as Private.
func (d *Driver) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) (bool, error) {
	if visibility != backends.Public {
		visibility = backends.Private
	}
	return soft(d, "setVisibility", path, func(path string) (bool, error) {
		return done(d.filesystem.SetVisibility(ctx, path, visibility))
	})
}
