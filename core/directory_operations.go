package core

import (
	"context"
	"sort"
	"time"

	"github.com/ebogdum/diskfs/metadata"
)

// Files returns the paths of the files directly under dir, sorted.
func (d *Driver) Files(ctx context.Context, dir string) ([]string, error) {
	return d.files(ctx, dir, false)
}

// AllFiles returns the paths of every file below dir, sorted.
func (d *Driver) AllFiles(ctx context.Context, dir string) ([]string, error) {
	return d.files(ctx, dir, true)
}

// Directories returns the directories directly under dir in listing order.
func (d *Driver) Directories(ctx context.Context, dir string) ([]string, error) {
	return d.directories(ctx, dir, false)
}

// AllDirectories returns every directory below dir in listing order.
func (d *Driver) AllDirectories(ctx context.Context, dir string) ([]string, error) {
	return d.directories(ctx, dir, true)
}

func (d *Driver) files(ctx context.Context, dir string, deep bool) ([]string, error) {
	paths, err := d.list(ctx, dir, deep, (*metadata.Attributes).IsFile)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *Driver) directories(ctx context.Context, dir string, deep bool) ([]string, error) {
	return d.list(ctx, dir, deep, (*metadata.Attributes).IsDir)
}

// list funnels every listing through one ListContents call. Listing
// failures are always returned.
func (d *Driver) list(ctx context.Context, dir string, deep bool, keep func(*metadata.Attributes) bool) ([]string, error) {
	dir, err := d.clean("listContents", dir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	paths := []string{}
	for attrs, lerr := range d.filesystem.ListContents(ctx, dir, deep) {
		if lerr != nil {
			err = lerr
			break
		}
		if keep(attrs) {
			paths = append(paths, attrs.Path)
		}
	}
	d.observe("listContents", start, err)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// MakeDirectory creates path and its parents.
func (d *Driver) MakeDirectory(ctx context.Context, path string, opts ...Option) (bool, error) {
	cfg := d.options(opts)
	return soft(d, "makeDirectory", path, func(path string) (bool, error) {
		return done(d.filesystem.CreateDirectory(ctx, path, cfg))
	})
}

// DeleteDirectory removes path recursively. A missing directory counts
// as deleted.
func (d *Driver) DeleteDirectory(ctx context.Context, path string) (bool, error) {
	return soft(d, "deleteDirectory", path, func(path string) (bool, error) {
		return done(d.filesystem.DeleteDirectory(ctx, path))
	})
}
