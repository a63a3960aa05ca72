package repository

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/library-system/auth-service/internal/domain"
)

type memoryRefreshEntry struct {
	value     string
	updatedAt time.Time
	expiresAt time.Time
}

// MemoryRefreshStore is a process-local RefreshStore. A single mutex is held
// across every read-compare-write.
type MemoryRefreshStore struct {
	mu      sync.Mutex
	entries map[string]memoryRefreshEntry
	now     func() time.Time
}

// NewMemoryRefreshStore returns an empty store. A nil clock means time.Now.
func NewMemoryRefreshStore(now func() time.Time) *MemoryRefreshStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRefreshStore{entries: make(map[string]memoryRefreshEntry), now: now}
}

// lookup returns the live entry, evicting it if expired. Caller holds mu.
func (s *MemoryRefreshStore) lookup(username string) (memoryRefreshEntry, bool) {
	entry, ok := s.entries[username]
	if !ok {
		return memoryRefreshEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, username)
		return memoryRefreshEntry{}, false
	}
	return entry, true
}

func (s *MemoryRefreshStore) Get(_ context.Context, username string) (*domain.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(username)
	if !ok {
		return nil, ErrRefreshRecordNotFound
	}
	return &domain.RefreshRecord{Username: username, Value: entry.value, UpdatedAt: entry.updatedAt}, nil
}

func (s *MemoryRefreshStore) Put(_ context.Context, username, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[username] = memoryRefreshEntry{value: value, updatedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, username)
	return nil
}

func (s *MemoryRefreshStore) Swap(_ context.Context, username, presented, next string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(username)
	if !ok {
		return ErrRefreshRecordNotFound
	}
	if !equalValues(entry.value, presented) {
		delete(s.entries, username)
		return ErrRefreshRecordMismatch
	}
	now := s.now()
	s.entries[username] = memoryRefreshEntry{value: next, updatedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) DeleteIfMatch(_ context.Context, username, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(username)
	if !ok || !equalValues(entry.value, value) {
		return false, nil
	}
	delete(s.entries, username)
	return true, nil
}

func equalValues(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
