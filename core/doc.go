// Package core defines the shared data model and collaborator contracts of
// the arbiter orchestration engine.
//
// It contains the immutable descriptors and request/result values exchanged
// between the planner, stage executor, quality loop and session coordinator,
// the RunSession lifecycle record, the error taxonomy used for retry and
// circuit-breaking classification, and the narrow interfaces (Invoker,
// Validator, Reviser, ProgressSink, LearningStore, SessionStore) through
// which out-of-scope collaborators plug into the engine.
//
// Core intentionally has no dependencies on the other arbiter packages so
// that every component can share these types without import cycles.
package core
