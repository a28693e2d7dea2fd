// Package learning persists patterns distilled from completed runs. The
// LEARNING phase writes through a core.LearningStore; failures there are
// logged and never fail the run. The SQLite store survives restarts, the
// in-memory store backs tests and single-shot embedding.
package learning
