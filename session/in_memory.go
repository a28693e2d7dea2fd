package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
)

// DefaultRetention is how long archived sessions stay readable before the
// sweeper removes them.
const DefaultRetention = time.Hour

// InMemoryStoreOptions configures an InMemoryStore.
type InMemoryStoreOptions struct {
	// Retention is the archived-session lifetime. Zero uses
	// DefaultRetention; negative disables sweeping entirely.
	Retention time.Duration
	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

type storedSession struct {
	session  *core.RunSession
	archived time.Time // zero while live
}

// InMemoryStore is the default SessionStore: a mutex-guarded map with
// clone-on-read semantics. Archived sessions remain readable until swept.
type InMemoryStore struct {
	opts InMemoryStoreOptions

	mu       sync.RWMutex
	sessions map[string]*storedSession
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(optFns ...func(o *InMemoryStoreOptions)) *InMemoryStore {
	opts := InMemoryStoreOptions{Retention: DefaultRetention, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &InMemoryStore{opts: opts, sessions: make(map[string]*storedSession)}
}

// Create makes a new session record in the INITIALIZING phase.
func (s *InMemoryStore) Create(id string) (*core.RunSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("%w: session %q already exists", core.ErrConfiguration, id)
	}
	sess := core.NewRunSession(id)
	s.sessions[id] = &storedSession{session: sess.Clone()}
	return sess, nil
}

// Get returns a clone of the stored session.
func (s *InMemoryStore) Get(id string) (*core.RunSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return st.session.Clone(), nil
}

// Save replaces the stored session state.
func (s *InMemoryStore) Save(sess *core.RunSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sess.ID]
	if !ok {
		return fmt.Errorf("session %q not found", sess.ID)
	}
	st.session = sess.Clone()
	return nil
}

// Archive marks the session eligible for retention cleanup. Idempotent.
func (s *InMemoryStore) Archive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	if st.archived.IsZero() {
		st.archived = s.opts.Clock()
	}
	return nil
}

// Sweep removes archived sessions older than the retention window and
// returns how many it removed. The engine calls this periodically; callers
// embedding the store directly may call it themselves.
func (s *InMemoryStore) Sweep() int {
	if s.opts.Retention < 0 {
		return 0
	}
	cutoff := s.opts.Clock().Add(-s.opts.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, st := range s.sessions {
		if !st.archived.IsZero() && st.archived.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, archived included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
