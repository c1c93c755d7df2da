package cache

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-broker/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]Entry // accountID -> entry
}

// NewInMemoryRepo creates a new in-memory credential cache
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		entries: make(map[string]Entry),
	}
}

// Upsert creates or replaces the entry for entry.Account.ID
func (r *InMemoryRepo) Upsert(entry Entry) error {
	if entry.Account.ID == "" {
		return errors.Wrapf(errors.ErrInvalidArgument, "account ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := NowTimeFunc()
	if existing, ok := r.entries[entry.Account.ID]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	r.entries[entry.Account.ID] = copyEntry(entry)
	return nil
}

// Get retrieves the entry cached for accountID
func (r *InMemoryRepo) Get(accountID string) (Entry, error) {
	if accountID == "" {
		return Entry{}, errors.Wrapf(errors.ErrInvalidArgument, "account ID is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[accountID]
	if !ok {
		return Entry{}, errors.Wrapf(errors.ErrNotFound, "cache entry %q", accountID)
	}
	return copyEntry(entry), nil
}

// List returns every cached entry, oldest first
func (r *InMemoryRepo) List() ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Account.ID < out[j].Account.ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the entry for accountID
func (r *InMemoryRepo) Delete(accountID string) error {
	if accountID == "" {
		return errors.Wrapf(errors.ErrInvalidArgument, "account ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, accountID) // Already doesn't exist, no error
	return nil
}

// Clear drops every entry
func (r *InMemoryRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]Entry)
	return nil
}

func copyEntry(e Entry) Entry {
	e.Scopes = slices.Clone(e.Scopes)
	return e
}
