package users

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/roster/internal/platform/httpx"
)

// ErrNoSession is returned when a roster is requested without a session id.
var ErrNoSession = fmt.Errorf("users: session missing: %w", httpx.ErrForbidden)

type entry struct {
	mu       sync.Mutex
	store    *Store
	lastSeen time.Time
}

// Registry owns one Store per UI session.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	pageSize int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRegistry builds a Registry whose stores use pageSize and expire after idleTTL without use.
// A non-positive idleTTL disables expiry.
func NewRegistry(pageSize int, idleTTL time.Duration) *Registry {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Registry{
		entries:  make(map[string]*entry),
		pageSize: pageSize,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// With runs fn with exclusive access to the session's store, creating it on first use.
func (r *Registry) With(sessionID string, fn func(*Store) error) error {
	if sessionID == "" {
		return ErrNoSession
	}
	e := r.acquire(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.store)
}

// Peek runs fn with exclusive access to the session's store without creating one.
// A session with no roster yet sees an empty, unregistered store that is dropped afterwards.
func (r *Registry) Peek(sessionID string, fn func(*Store) error) error {
	if sessionID == "" {
		return ErrNoSession
	}
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return fn(NewStore(r.pageSize))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.store)
}

func (r *Registry) acquire(sessionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{store: NewStore(r.pageSize)}
		r.entries[sessionID] = e
	}
	e.lastSeen = r.now()
	return e
}

// Discard drops the session's store. It reports whether a store existed.
func (r *Registry) Discard(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	return ok
}

// Sweep drops stores that have been idle longer than the configured TTL.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTTL {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run sweeps idle stores every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 || r.idleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 && logger != nil {
				logger.Info("evicted idle rosters", slog.Int("count", n), slog.Int("remaining", r.Len()))
			}
		}
	}
}
