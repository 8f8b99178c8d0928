// Package store provides an in-memory key/value store with per-entry expiry.
// It backs the local engine's image handles and the pipeline's composite memo.
package store

import (
	"sync"
	"time"
)

// Sentinel errors for store operations
var (
	ErrNotFound = storeError("entry not found")
	ErrExpired  = storeError("entry expired")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is a TTL map guarded by a RWMutex. Expired entries are removed by a
// background loop until Stop is called.
type Memory[V any] struct {
	mu       sync.RWMutex
	entries  map[string]entry[V]
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemory creates a store whose entries live for ttl.
// cleanupInterval specifies how often expired entries are swept.
func NewMemory[V any](ttl, cleanupInterval time.Duration) *Memory[V] {
	s := &Memory[V]{
		entries:  make(map[string]entry[V]),
		ttl:      ttl,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Put stores value under key, replacing any previous entry.
func (s *Memory[V]) Put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(s.ttl)}
}

// Get returns the value stored under key.
func (s *Memory[V]) Get(key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero V
	e, ok := s.entries[key]
	if !ok {
		return zero, ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		return zero, ErrExpired
	}
	return e.value, nil
}

// Delete removes key.
func (s *Memory[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// Len returns the number of entries, expired ones included until swept.
func (s *Memory[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Stop stops the background cleanup goroutine. It is safe to call twice.
func (s *Memory[V]) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Memory[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Memory[V]) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
