// Package session owns the mutable lifecycle record of a run. The
// Coordinator serializes every mutation of a RunSession behind one mutex,
// enforces the forward-only phase machine, persists each change to the
// configured store and emits progress events. The InMemoryStore is the
// default store with clone-on-read semantics and retention-based cleanup of
// archived sessions.
package session
