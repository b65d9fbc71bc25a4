package stores

import (
	"context"
	"time"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// EventLevel represents the severity level of a persisted event.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// RunRecord is a persisted build invocation.
type RunRecord struct {
	ID          string     `json:"id"`
	Targets     string     `json:"targets"` // JSON array of task IDs
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     string     `json:"summary"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskResultRecord is a persisted per-task outcome within a run.
type TaskResultRecord struct {
	RunID      string        `json:"run_id"`
	TaskID     string        `json:"task_id"`
	Status     string        `json:"status"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      *string       `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Event represents an append-only log event tied to a run.
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	TaskID    *string    `json:"task_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the persistence layer: fingerprint records that survive
// across invocations, plus run history and an append-only event log.
type Store interface {
	engine.FingerprintStore
	engine.RunRecorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// ResetFingerprints deletes all fingerprint records, forcing every
	// task out-of-date on the next invocation.
	ResetFingerprints(ctx context.Context) error

	// Run history
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	ListTaskResults(ctx context.Context, runID string) ([]*TaskResultRecord, error)

	// Event log
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, runID string, limit int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
