// Package readonly guards an adapter against writes.
package readonly

import (
	"context"
	"io"
	"iter"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

// Adapter passes reads through to the wrapped adapter and rejects every
// write with the write's failure kind wrapping metadata.ErrReadOnly.
type Adapter struct {
	inner backends.Adapter
}

// New wraps inner in a read-only guard
func New(inner backends.Adapter) *Adapter {
	return &Adapter{inner: inner}
}

// Unwrap returns the guarded adapter
func (a *Adapter) Unwrap() backends.Adapter { return a.inner }

func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	return a.inner.FileExists(ctx, path)
}

func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return a.inner.DirectoryExists(ctx, path)
}

func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	return a.inner.Read(ctx, path)
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	return a.inner.ReadStream(ctx, path)
}

// Write always fails
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return metadata.NewError(metadata.ErrUnableToWrite, "write", path, metadata.ErrReadOnly)
}

// WriteStream always fails
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	return metadata.NewError(metadata.ErrUnableToWrite, "writeStream", path, metadata.ErrReadOnly)
}

// Delete always fails
func (a *Adapter) Delete(ctx context.Context, path string) error {
	return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, metadata.ErrReadOnly)
}

// DeleteDirectory always fails
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, metadata.ErrReadOnly)
}

// CreateDirectory always fails
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, metadata.ErrReadOnly)
}

// SetVisibility always fails
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, metadata.ErrReadOnly)
}

func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.inner.Visibility(ctx, path)
}

func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.inner.MimeType(ctx, path)
}

func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.inner.LastModified(ctx, path)
}

func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.inner.FileSize(ctx, path)
}

func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return a.inner.ListContents(ctx, path, deep)
}

// Move always fails
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	return metadata.NewError(metadata.ErrUnableToMove, "move", src, metadata.ErrReadOnly)
}

// Copy always fails
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, metadata.ErrReadOnly)
}

// Close closes the guarded adapter
func (a *Adapter) Close() error { return a.inner.Close() }
