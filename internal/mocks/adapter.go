// Package mocks holds test doubles shared across packages.
package mocks

import (
	"bytes"
	"context"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

type memFile struct {
	data       []byte
	visibility backends.Visibility
	mimeType   string
	modified   time.Time
}

// MemoryAdapter is an in-memory backends.Adapter. Directories are
// implicit from file paths plus explicitly created ones. Failures can be
// injected per operation name through Fail.
type MemoryAdapter struct {
	mu      sync.Mutex
	files   map[string]*memFile
	dirs    map[string]struct{}
	failOps map[string]error
	calls   map[string]int
	now     func() time.Time
	closed  bool
}

// NewMemoryAdapter returns an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		files:   make(map[string]*memFile),
		dirs:    make(map[string]struct{}),
		failOps: make(map[string]error),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (m *MemoryAdapter) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOps, op)
		return
	}
	m.failOps[op] = err
}

// Calls returns how often op was invoked.
func (m *MemoryAdapter) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Paths returns the stored file paths, sorted.
func (m *MemoryAdapter) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether Close was called.
func (m *MemoryAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// enter records the call and returns the injected failure; caller holds mu.
func (m *MemoryAdapter) enter(op string) error {
	m.calls[op]++
	return m.failOps[op]
}

func clean(path string) string { return strings.Trim(path, "/") }

func (m *MemoryAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("fileExists"); err != nil {
		return false, err
	}
	_, ok := m.files[clean(path)]
	return ok, nil
}

func (m *MemoryAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("directoryExists"); err != nil {
		return false, err
	}
	return m.isDir(clean(path)), nil
}

func (m *MemoryAdapter) isDir(path string) bool {
	if _, ok := m.dirs[path]; ok {
		return true
	}
	for p := range m.files {
		if strings.HasPrefix(p, path+"/") {
			return true
		}
	}
	return false
}

func (m *MemoryAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("read"); err != nil {
		return nil, err
	}
	f, ok := m.files[clean(path)]
	if !ok {
		return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, nil)
	}
	return bytes.Clone(f.data), nil
}

func (m *MemoryAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := m.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryAdapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("write"); err != nil {
		return err
	}
	m.files[clean(path)] = &memFile{
		data:       bytes.Clone(contents),
		visibility: cfg.Visibility(backends.OptionVisibility, backends.Private),
		mimeType:   backends.ContentType(path, contents, cfg),
		modified:   m.now(),
	}
	return nil
}

func (m *MemoryAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "writeStream", path, err)
	}
	m.mu.Lock()
	failure := m.enter("writeStream")
	m.mu.Unlock()
	if failure != nil {
		return failure
	}
	return m.Write(ctx, path, data, cfg)
}

func (m *MemoryAdapter) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return err
	}
	delete(m.files, clean(path))
	return nil
}

func (m *MemoryAdapter) DeleteDirectory(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("deleteDirectory"); err != nil {
		return err
	}
	dir := clean(path)
	for p := range m.files {
		if dir == "" || strings.HasPrefix(p, dir+"/") {
			delete(m.files, p)
		}
	}
	for d := range m.dirs {
		if d == dir || strings.HasPrefix(d, dir+"/") {
			delete(m.dirs, d)
		}
	}
	return nil
}

func (m *MemoryAdapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("createDirectory"); err != nil {
		return err
	}
	for dir := clean(path); dir != ""; dir = pathutil.Dir(dir) {
		m.dirs[dir] = struct{}{}
	}
	return nil
}

func (m *MemoryAdapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("setVisibility"); err != nil {
		return err
	}
	f, ok := m.files[clean(path)]
	if !ok {
		return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, nil)
	}
	f.visibility = visibility
	return nil
}

func (m *MemoryAdapter) attrs(op, path string) (*metadata.Attributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(op); err != nil {
		return nil, err
	}
	f, ok := m.files[clean(path)]
	if !ok {
		return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, nil)
	}
	attrs := metadata.NewFile(clean(path), int64(len(f.data)), f.modified)
	attrs.Visibility = string(f.visibility)
	attrs.MimeType = f.mimeType
	return attrs, nil
}

func (m *MemoryAdapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return m.attrs("visibility", path)
}

func (m *MemoryAdapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return m.attrs("mimeType", path)
}

func (m *MemoryAdapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return m.attrs("lastModified", path)
}

func (m *MemoryAdapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return m.attrs("fileSize", path)
}

// ListContents snapshots matching entries under the lock and yields them
// in map order.
func (m *MemoryAdapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("listContents"); err != nil {
		return backends.Fail(err)
	}

	dir := clean(path)
	within := func(p string) bool {
		if dir != "" && !strings.HasPrefix(p, dir+"/") {
			return false
		}
		rest := strings.TrimPrefix(p, dir+"/")
		if dir == "" {
			rest = p
		}
		return deep || !strings.Contains(rest, "/")
	}

	var entries []*metadata.Attributes
	seenDirs := make(map[string]struct{})
	addDir := func(d string) {
		if _, ok := seenDirs[d]; ok || d == dir || !within(d) {
			return
		}
		seenDirs[d] = struct{}{}
		entries = append(entries, metadata.NewDirectory(d, time.Time{}))
	}
	for p, f := range m.files {
		for parent := pathutil.Dir(p); parent != ""; parent = pathutil.Dir(parent) {
			addDir(parent)
		}
		if within(p) {
			entries = append(entries, metadata.NewFile(p, int64(len(f.data)), f.modified))
		}
	}
	for d := range m.dirs {
		addDir(d)
	}

	return func(yield func(*metadata.Attributes, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MemoryAdapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("move"); err != nil {
		return err
	}
	f, ok := m.files[clean(src)]
	if !ok {
		return metadata.Missing(metadata.ErrUnableToMove, "move", src, nil)
	}
	delete(m.files, clean(src))
	m.files[clean(dst)] = f
	return nil
}

func (m *MemoryAdapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("copy"); err != nil {
		return err
	}
	f, ok := m.files[clean(src)]
	if !ok {
		return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, nil)
	}
	cp := *f
	cp.data = bytes.Clone(f.data)
	m.files[clean(dst)] = &cp
	return nil
}

func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ backends.Adapter = (*MemoryAdapter)(nil)

// KindedAdapter reports a fixed kind for URL synthesis tests.
type KindedAdapter struct {
	*MemoryAdapter
	AdapterKind backends.Kind
}

func (k *KindedAdapter) Kind() backends.Kind { return k.AdapterKind }

// URLAdapter adds a native URL capability.
type URLAdapter struct {
	*MemoryAdapter
	Base string
}

func (u *URLAdapter) URL(path string) (string, error) {
	return strings.TrimRight(u.Base, "/") + "/" + clean(path), nil
}

// PresignAdapter adds an S3-style presign capability.
type PresignAdapter struct {
	*MemoryAdapter
	Base string
}

func (p *PresignAdapter) Presign(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	return strings.TrimRight(p.Base, "/") + "/" + clean(path) + "?X-Amz-Expires=" + expiresAt.UTC().Format("20060102T150405Z"), nil
}

// MockStore implements metadata.Store with testify expectations.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) (*metadata.Attributes, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metadata.Attributes), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, key string, attrs *metadata.Attributes, ttl time.Duration) error {
	return m.Called(ctx, key, attrs, ttl).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStore) DeletePrefix(ctx context.Context, prefix string) error {
	return m.Called(ctx, prefix).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

var _ metadata.Store = (*MockStore)(nil)
