// Package engine is the orchestration façade: it validates run requests,
// drives the run lifecycle (planning, staged execution, quality control,
// learning) through the session coordinator, and exposes asynchronous runs
// over event and error channels. Public methods are safe for concurrent use.
package engine
