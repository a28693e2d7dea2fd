package learning

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/internal/testutil"
)

// Interface compliance (compile-time assertions)
var (
	_ core.LearningStore = (*SQLiteStore)(nil)
	_ core.LearningStore = (*InMemoryStore)(nil)
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "learnings.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_PersistAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	results := map[string]core.AgentResult{
		"security": testutil.NewResultBuilder("security").Confidence(0.9).Build(),
	}
	patterns := []core.Pattern{
		{Agent: "security", Domain: "security", Description: "input validation missing", Confidence: 0.9},
		{Agent: "security", Domain: "security", Description: "raw sql concatenation", Confidence: 0.85},
	}
	assert.NoError(t, store.Persist(ctx, "run-1", results, patterns))

	got, err := store.PatternsFor(ctx, "security")
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "security", p.Agent)
		assert.Equal(t, "security", p.Domain)
	}

	n, err := store.RunCount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_PersistIdempotentPerRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	results := map[string]core.AgentResult{
		"a": testutil.NewResultBuilder("a").Build(),
	}
	assert.NoError(t, store.Persist(ctx, "run-1", results, nil))
	assert.NoError(t, store.Persist(ctx, "run-1", results, nil))

	n, err := store.RunCount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_EmptyDomainIsNull(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.Persist(ctx, "run-1", nil, []core.Pattern{
		{Agent: "a", Description: "no domain", Confidence: 0.8},
	}))

	got, err := store.PatternsFor(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Empty(t, got[0].Domain)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learnings.db")
	ctx := context.Background()

	store, err := Open(path)
	assert.NoError(t, err)
	assert.NoError(t, store.Persist(ctx, "run-1", nil, []core.Pattern{
		{Agent: "a", Description: "persisted", Confidence: 0.9},
	}))
	assert.NoError(t, store.Close())

	reopened, err := Open(path)
	assert.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.PatternsFor(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Description)
}

func TestInMemoryStore_Persist(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	results := map[string]core.AgentResult{
		"a": testutil.NewResultBuilder("a").Build(),
	}
	assert.NoError(t, store.Persist(ctx, "run-1", results, []core.Pattern{
		{Agent: "a", Description: "d", Confidence: 1.0},
	}))

	records := store.Records()
	assert.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)

	// Mutating the caller's map after Persist must not leak in.
	results["b"] = testutil.NewResultBuilder("b").Build()
	assert.Len(t, store.Records()[0].Results, 1)
}
