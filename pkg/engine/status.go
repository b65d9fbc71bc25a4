package engine

import (
	"encoding/json"
	"fmt"
)

// TaskStatus represents the lifecycle state of a task during one invocation.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to execute.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the task's action is currently executing.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusSucceeded indicates the task's action completed with exit 0.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates the task's action failed or could not start.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusUpToDate indicates the task was skipped because its recorded
	// fingerprints match current reality.
	TaskStatusUpToDate TaskStatus = "up_to_date"

	// TaskStatusSkippedFailed indicates the task was never invoked because a
	// dependency (direct or transitive) failed.
	TaskStatusSkippedFailed TaskStatus = "skipped_failed"

	// TaskStatusCancelled indicates the task was never invoked because the
	// invocation was cancelled (fail-fast or interrupt).
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed ||
		s == TaskStatusUpToDate || s == TaskStatusSkippedFailed ||
		s == TaskStatusCancelled
}

// Satisfied returns true if a dependent of a task in this status may start.
func (s TaskStatus) Satisfied() bool {
	return s == TaskStatusSucceeded || s == TaskStatusUpToDate
}

// Validate checks if the task status is valid.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSucceeded,
		TaskStatusFailed, TaskStatusUpToDate, TaskStatusSkippedFailed,
		TaskStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid task status: %s", s)
	}
}

// RunStatus represents the overall status of a build invocation.
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every scheduled task succeeded or was
	// up-to-date.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one scheduled task failed or was
	// skipped due to a failure.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled before completion.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// InputKind identifies what an input spec refers to.
type InputKind string

const (
	// InputFile refers to a single file.
	InputFile InputKind = "file"

	// InputDir refers to a directory subtree.
	InputDir InputKind = "dir"

	// InputLiteral refers to a literal key-value, e.g. an environment flag.
	InputLiteral InputKind = "literal"
)

// Validate checks if the input kind is valid.
func (k InputKind) Validate() error {
	switch k {
	case InputFile, InputDir, InputLiteral:
		return nil
	default:
		return fmt.Errorf("invalid input kind: %s", k)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = TaskStatus(str)
	return s.Validate()
}
