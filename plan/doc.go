// Package plan resolves a requested agent set against the descriptor
// registry into an ordered list of execution stages.
//
// Each stage is a set of agents with no dependencies among each other, so a
// stage can execute concurrently while stages themselves run in order. The
// resolver closes over transitive dependencies (marking agents it pulled in
// implicitly), orders via Kahn's topological sort, and rejects cycles and
// unknown names as configuration errors before anything executes.
package plan
