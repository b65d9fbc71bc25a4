package engine

import "context"

// FingerprintStore persists per-task fingerprint records across invocations.
// Implementations must replace a task's record atomically: concurrent
// readers see either the prior or the fully-updated record, never a partial
// write. A single executor process owns the store for the duration of one
// invocation, and each task's record is written only by that task's
// completion handling.
type FingerprintStore interface {
	// GetFingerprint returns the record for a task, or (nil, nil) if no
	// successful run has been recorded.
	GetFingerprint(ctx context.Context, id TaskID) (*FingerprintRecord, error)

	// PutFingerprint atomically replaces the record for a task.
	PutFingerprint(ctx context.Context, record *FingerprintRecord) error

	// DeleteFingerprint removes the record for a task, forcing the next
	// evaluation to report out-of-date.
	DeleteFingerprint(ctx context.Context, id TaskID) error
}

// ActionRunner invokes a task's opaque external action. The engine
// interprets nothing about the action beyond the exit code: a command that
// exits non-zero and a command that cannot be started are both action
// failures.
type ActionRunner interface {
	// Run executes the action and returns its outcome. A non-nil error
	// means the process could not be run at all; a non-zero exit code is
	// reported through the result, not the error.
	Run(ctx context.Context, spec ActionSpec) (*ActionResult, error)
}

// RunRecorder persists invocation history. It is optional: a nil recorder
// disables history without affecting execution.
type RunRecorder interface {
	// RecordRunStart persists the initial state of an invocation.
	RecordRunStart(ctx context.Context, report *RunReport) error

	// RecordRunFinish persists the final state of an invocation, including
	// per-task results.
	RecordRunFinish(ctx context.Context, report *RunReport) error
}
