package engine

import (
	"sort"
	"time"

	"github.com/kilnbuild/kiln/pkg/fingerprint"
)

// TaskID is a project-qualified task identity of the form "project:task".
type TaskID string

// InputSpec is a named reference to a declared task input.
type InputSpec struct {
	// Name is the input's name, unique within the task.
	Name string `json:"name"`

	// Kind identifies whether the input is a file, directory, or literal.
	Kind InputKind `json:"kind"`

	// Path is the filesystem path for file and dir inputs.
	Path string `json:"path,omitempty"`

	// Value is the literal value for literal inputs.
	Value string `json:"value,omitempty"`
}

// OutputSpec is a named reference to a declared task output. Every output
// path is owned exclusively by the declaring task.
type OutputSpec struct {
	// Name is the output's name, unique within the task.
	Name string `json:"name"`

	// Path is the filesystem path (file or directory) the task produces.
	Path string `json:"path"`
}

// ActionSpec describes the opaque external invocation for a task. The
// engine does not interpret action semantics beyond the exit code.
type ActionSpec struct {
	// Command is the executable or shell command line to run.
	Command string `json:"command"`

	// Args are the command arguments. If empty, Command is run through a
	// shell.
	Args []string `json:"args,omitempty"`

	// Env are environment variable overrides applied on top of the parent
	// process environment.
	Env map[string]string `json:"env,omitempty"`

	// WorkDir is the working directory for the invocation.
	WorkDir string `json:"work_dir,omitempty"`
}

// Digest returns a stable content digest of the action descriptor. A change
// to the command, arguments, environment overrides, or working directory
// invalidates previously recorded fingerprints.
func (a ActionSpec) Digest() string {
	parts := make([]string, 0, len(a.Args)+len(a.Env)+2)
	parts = append(parts, a.Command)
	parts = append(parts, a.Args...)
	env := make([]string, 0, len(a.Env))
	for k, v := range a.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	parts = append(parts, env...)
	parts = append(parts, a.WorkDir)
	return fingerprint.Strings(parts...)
}

// ArtifactDecl declares that a task publishes one of its outputs as a named,
// typed artifact consumable across project boundaries.
type ArtifactDecl struct {
	// Name is the artifact name, unique across the whole graph.
	Name string `json:"name"`

	// Type is the artifact type tag (e.g. "archive", "dir").
	Type string `json:"type"`

	// Output names the declaring task's output backing this artifact.
	Output string `json:"output"`
}

// Task is a named unit of build work with declared dependencies, inputs,
// outputs, and an opaque external action. Tasks are created at graph-build
// time from declarative configuration and live for one invocation.
type Task struct {
	// ID is the project-qualified task identity.
	ID TaskID `json:"id"`

	// Project is the subproject this task belongs to.
	Project string `json:"project"`

	// Name is the task name within its project.
	Name string `json:"name"`

	// DependsOn lists explicitly declared dependency task identities, in
	// declaration order.
	DependsOn []TaskID `json:"depends_on,omitempty"`

	// Inputs are the declared input specs.
	Inputs []InputSpec `json:"inputs,omitempty"`

	// Outputs are the declared output specs.
	Outputs []OutputSpec `json:"outputs,omitempty"`

	// Action is the external invocation run when the task is out of date.
	Action ActionSpec `json:"action"`

	// Publishes lists artifacts this task publishes from its outputs.
	Publishes []ArtifactDecl `json:"publishes,omitempty"`

	// Consumes lists artifact names this task depends on. Each consumed
	// artifact implies a graph edge to its producer and contributes the
	// artifact's backing path to this task's effective inputs.
	Consumes []string `json:"consumes,omitempty"`
}

// Output returns the named output spec, if declared.
func (t *Task) Output(name string) (OutputSpec, bool) {
	for _, o := range t.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return OutputSpec{}, false
}

// FingerprintRecord captures the digests of a task's declared inputs and
// outputs after its last successful run. Records are persisted across
// invocations and replaced atomically per task.
type FingerprintRecord struct {
	// TaskID is the owning task identity.
	TaskID TaskID `json:"task_id"`

	// Inputs maps input spec names to content digests.
	Inputs map[string]string `json:"inputs"`

	// Outputs maps output spec names to content digests.
	Outputs map[string]string `json:"outputs"`

	// ActionDigest is the digest of the action descriptor that produced
	// the outputs.
	ActionDigest string `json:"action_digest"`

	// RecordedAt is when the record was captured, immediately after a
	// successful run.
	RecordedAt time.Time `json:"recorded_at"`
}

// Artifact is a named, versioned reference to a producing task's output,
// published after the producer succeeded or was confirmed up-to-date.
type Artifact struct {
	// Name is the artifact name.
	Name string `json:"name"`

	// Type is the artifact type tag.
	Type string `json:"type"`

	// Producer is the identity of the publishing task.
	Producer TaskID `json:"producer"`

	// Path is the filesystem path of the backing output.
	Path string `json:"path"`

	// Version is the content digest of the backing output at publish time.
	Version string `json:"version"`

	// PublishedAt is when the artifact was published in this invocation.
	PublishedAt time.Time `json:"published_at"`
}

// ActionResult is the outcome of one external action invocation.
type ActionResult struct {
	// ExitCode is the process exit status. Zero means success.
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration `json:"duration"`
}

// TaskResult is the per-task outcome of one invocation.
type TaskResult struct {
	// TaskID is the task this result belongs to.
	TaskID TaskID `json:"task_id"`

	// Status is the terminal status the task reached.
	Status TaskStatus `json:"status"`

	// StartedAt is when evaluation or execution of the task began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the task reached its terminal state.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total time from start to terminal state.
	Duration time.Duration `json:"duration"`

	// Action is the action outcome, when the action was invoked.
	Action *ActionResult `json:"action,omitempty"`

	// Error is the classified error, for failed and skipped tasks.
	Error *BuildError `json:"error,omitempty"`
}

// RunSummary provides statistics about a build invocation.
type RunSummary struct {
	// Total is the number of tasks scheduled in the invocation.
	Total int `json:"total"`

	// Succeeded is the number of tasks whose action completed with exit 0.
	Succeeded int `json:"succeeded"`

	// UpToDate is the number of tasks skipped as up-to-date.
	UpToDate int `json:"up_to_date"`

	// Failed is the number of tasks whose action failed.
	Failed int `json:"failed"`

	// SkippedFailed is the number of tasks skipped because a dependency
	// failed.
	SkippedFailed int `json:"skipped_failed"`

	// Cancelled is the number of tasks cancelled before starting.
	Cancelled int `json:"cancelled"`
}

// RunReport is the full result of one build invocation.
type RunReport struct {
	// ID is the unique identifier of the invocation.
	ID string `json:"id"`

	// Targets are the requested target task identities.
	Targets []TaskID `json:"targets"`

	// Status is the overall invocation status.
	Status RunStatus `json:"status"`

	// StartedAt is when the invocation started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the invocation completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total invocation duration.
	Duration time.Duration `json:"duration"`

	// Results maps task identities to their per-task results.
	Results map[TaskID]*TaskResult `json:"results"`

	// Summary provides aggregate statistics.
	Summary RunSummary `json:"summary"`
}
