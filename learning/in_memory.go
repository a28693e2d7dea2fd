package learning

import (
	"context"
	"sync"
	"time"

	"github.com/arbiterlabs/arbiter/core"
)

// Record is one persisted learning entry.
type Record struct {
	RunID    string
	Results  map[string]core.AgentResult
	Patterns []core.Pattern
	Stored   time.Time
}

// InMemoryStore is a core.LearningStore keeping records in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Persist implements core.LearningStore.
func (s *InMemoryStore) Persist(_ context.Context, runID string, results map[string]core.AgentResult, patterns []core.Pattern) error {
	cloned := make(map[string]core.AgentResult, len(results))
	for k, v := range results {
		cloned[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{
		RunID:    runID,
		Results:  cloned,
		Patterns: append([]core.Pattern{}, patterns...),
		Stored:   time.Now().UTC(),
	})
	return nil
}

// Records returns a copy of everything persisted so far.
func (s *InMemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record{}, s.records...)
}
