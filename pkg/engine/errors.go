package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a build error for propagation
// logic. Configuration errors abort the whole invocation before any task
// runs; runtime errors are contained to the affected subgraph.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates an invalid task graph or manifest.
	// Examples: duplicate task identity, unknown dependency reference,
	// duplicate output ownership, dependency cycle.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassRuntime indicates a failure during execution of a valid
	// graph. Examples: missing input file, non-zero action exit.
	ErrorClassRuntime ErrorClass = "runtime"

	// ErrorClassInternal indicates a bug in the orchestrator itself.
	ErrorClassInternal ErrorClass = "internal"
)

// BuildError represents a classified error with task context.
type BuildError struct {
	// Class is the error classification for propagation logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Task is the identity of the task that caused the error, if applicable.
	Task TaskID `json:"task,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Task != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (task=%s, operation=%s)", e.Class, msg, e.Task, e.Operation)
	}
	if e.Task != "" {
		return fmt.Sprintf("[%s] %s (task=%s)", e.Class, msg, e.Task)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates a new configuration-class error.
func NewConfigurationError(message string, err error) *BuildError {
	return &BuildError{
		Class:   ErrorClassConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewRuntimeError creates a new runtime-class error.
func NewRuntimeError(message string, err error) *BuildError {
	return &BuildError{
		Class:   ErrorClassRuntime,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal-class error.
func NewInternalError(message string, err error) *BuildError {
	return &BuildError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithTask adds task context to an error.
func (e *BuildError) WithTask(id TaskID) *BuildError {
	e.Task = id
	return e
}

// WithOperation adds operation context to an error.
func (e *BuildError) WithOperation(operation string) *BuildError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *BuildError) WithCode(code string) *BuildError {
	e.Code = code
	return e
}

// IsConfiguration returns true if the error is configuration-class.
func IsConfiguration(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfiguration
	}
	return false
}

// IsRuntime returns true if the error is runtime-class.
func IsRuntime(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Class == ErrorClassRuntime
	}
	return false
}

// Code returns the error code of a classified error, or "" for other errors.
func Code(err error) string {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeDuplicateTask      = "DUPLICATE_TASK"
	ErrCodeUnknownTask        = "UNKNOWN_TASK"
	ErrCodeDuplicateOutput    = "DUPLICATE_OUTPUT"
	ErrCodeCyclicDependency   = "CYCLIC_DEPENDENCY"
	ErrCodeDuplicateArtifact  = "DUPLICATE_ARTIFACT"
	ErrCodeUnresolvedArtifact = "UNRESOLVED_ARTIFACT"
	ErrCodeMissingInput       = "MISSING_INPUT"
	ErrCodeMissingOutput      = "MISSING_OUTPUT"
	ErrCodeActionFailed       = "ACTION_FAILED"
	ErrCodeDependencyFailed   = "DEPENDENCY_FAILED"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
