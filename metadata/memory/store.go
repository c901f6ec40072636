// Package memory provides an in-process metadata cache with TTL support.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/diskfs/metadata"
)

// DefaultMaxSize bounds the number of cached entries.
const DefaultMaxSize = 10000

type entry struct {
	attrs     *metadata.Attributes
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is a metadata.Store kept in memory
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewStore creates an in-memory store and starts its janitor goroutine.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	s := &Store{
		entries:  make(map[string]*entry),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go s.cleanupExpiredEntries()

	return s
}

// Get retrieves cached attributes
func (s *Store) Get(ctx context.Context, key string) (*metadata.Attributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, metadata.ErrNotFound
	}
	cp := *e.attrs
	return &cp, nil
}

// Set stores attributes; a zero ttl never expires
func (s *Store) Set(ctx context.Context, key string, attrs *metadata.Attributes, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.evictOneEntry()
	}

	cp := *attrs
	e := &entry{attrs: &cp}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes an entry
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// DeletePrefix removes all entries with the given key prefix
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

// evictOneEntry removes one entry to make space (caller must hold lock)
func (s *Store) evictOneEntry() {
	now := time.Now()

	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			return
		}
	}

	// TODO: switch to LRU once the cache decorator records access times.
	for key := range s.entries {
		delete(s.entries, key)
		return
	}
}

func (s *Store) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performCleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Store) performCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}
