// Package stores provides the persistence layer for kiln: fingerprint
// records that survive across invocations, run history, and an append-only
// event log.
//
// SQLiteStore is the durable implementation (WAL mode, embedded
// migrations); MemoryStore backs tests and ephemeral invocations. Both
// satisfy the engine's FingerprintStore and RunRecorder interfaces, and
// fingerprint replacement is atomic per task record.
package stores
