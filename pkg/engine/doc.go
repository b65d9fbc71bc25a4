// Package engine implements the incremental build orchestrator core: a
// directed acyclic graph of tasks with declared inputs, outputs, and opaque
// external actions, executed level by level with up-to-date skipping.
//
// The execution pipeline is:
//
//	Graph -> Closure -> Levels -> Executor -> Evaluator -> ActionRunner
//
// A Graph is built from declarative task configuration. Registering tasks
// validates identities and output ownership; Resolve binds consumed
// artifact names to their producers and derives the implied edges; Closure
// computes the minimal task set for the requested targets and rejects
// cycles before anything runs.
//
// The Executor walks the closure in topological levels. Before each task it
// checks that every dependency reached a satisfied terminal state, then asks
// the Evaluator whether the task may be skipped: a task is up-to-date when
// the fingerprints recorded after its last successful run still match its
// declared inputs, its declared outputs, and its action descriptor. Out-of-
// date tasks have their action invoked through an ActionRunner; on exit 0
// the fingerprint record is replaced in the FingerprintStore and declared
// artifacts are published to the ArtifactRegistry.
//
// Error handling follows two classes. Configuration errors (duplicate
// identities, unknown references, duplicate output ownership, cycles,
// artifact binding conflicts) are fatal to the whole invocation and abort
// before any task executes. Runtime errors (missing inputs, action
// failures) fail the affected task and its transitive dependents while
// unrelated branches continue, unless fail-fast mode cancels the remainder.
package engine
