package flowrepo

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-session-broker/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Flows older than the configured TTL are reported as expired and dropped.
type InMemoryRepo struct {
	mu    sync.RWMutex
	ttl   time.Duration
	flows map[string]*Flow
}

// NewInMemoryRepo creates a new in-memory flow repository. A ttl of zero
// keeps flows until they are deleted.
func NewInMemoryRepo(ttl time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		ttl:   ttl,
		flows: make(map[string]*Flow),
	}
}

// Upsert stores or updates a flow
func (r *InMemoryRepo) Upsert(state string, flow *Flow) error {
	if state == "" {
		return errors.Wrapf(errors.ErrInvalidArgument, "state cannot be empty")
	}
	if flow == nil {
		return errors.Wrapf(errors.ErrInvalidArgument, "flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *flow
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = NowTimeFunc()
	}
	r.flows[state] = &stored
	r.purgeLocked()
	return nil
}

// Get retrieves a flow by its state parameter
func (r *InMemoryRepo) Get(state string) (*Flow, error) {
	if state == "" {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "flow state")
	}
	if r.expired(flow) {
		delete(r.flows, state)
		return nil, errors.Wrapf(errors.ErrExpired, "flow state")
	}

	// Return a copy to prevent external modifications
	out := *flow
	return &out, nil
}

// Delete removes a flow
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.Wrapf(errors.ErrInvalidArgument, "state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

func (r *InMemoryRepo) expired(flow *Flow) bool {
	return r.ttl > 0 && NowTimeFunc().Sub(flow.CreatedAt) > r.ttl
}

// purgeLocked drops abandoned flows. Callers hold r.mu.
func (r *InMemoryRepo) purgeLocked() {
	for state, flow := range r.flows {
		if r.expired(flow) {
			delete(r.flows, state)
		}
	}
}
