// Package manifest loads and validates the workspace build manifest
// (kiln.yaml) and turns its declarations into an engine task graph.
package manifest

// Manifest is the root of a kiln.yaml workspace declaration.
type Manifest struct {
	// Version is the manifest schema version.
	Version string `yaml:"version" validate:"required,eq=1"`

	// Projects are the subprojects composing the build.
	Projects []Project `yaml:"projects" validate:"required,min=1,dive"`
}

// Project groups the tasks of one subproject.
type Project struct {
	// Name identifies the project; it becomes the prefix of every task
	// identity ("project:task").
	Name string `yaml:"name" validate:"required,excludesall=0x3A"`

	// Tasks are the project's task declarations.
	Tasks []TaskDecl `yaml:"tasks" validate:"required,min=1,dive"`
}

// TaskDecl declares one task.
type TaskDecl struct {
	// Name is the task name within its project.
	Name string `yaml:"name" validate:"required,excludesall=0x3A"`

	// DependsOn lists dependency task names. A bare name refers to a task
	// in the same project; "project:task" crosses project boundaries.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Inputs are the declared inputs.
	Inputs []InputDecl `yaml:"inputs,omitempty" validate:"dive"`

	// Outputs are the declared outputs.
	Outputs []OutputDecl `yaml:"outputs,omitempty" validate:"dive"`

	// Action is the external command run when the task is out of date.
	Action ActionDecl `yaml:"action" validate:"required"`

	// Publishes lists artifacts published from this task's outputs.
	Publishes []PublishDecl `yaml:"publishes,omitempty" validate:"dive"`

	// Consumes lists artifact names this task depends on.
	Consumes []string `yaml:"consumes,omitempty"`
}

// InputDecl declares one task input.
type InputDecl struct {
	// Name is the input's name, unique within the task.
	Name string `yaml:"name" validate:"required"`

	// Kind is the input kind: file, dir, or literal.
	Kind string `yaml:"kind" validate:"required,oneof=file dir literal"`

	// Path is the filesystem path for file and dir inputs, relative to
	// the workspace root unless absolute.
	Path string `yaml:"path,omitempty" validate:"required_unless=Kind literal"`

	// Value is the literal value for literal inputs.
	Value string `yaml:"value,omitempty"`
}

// OutputDecl declares one task output.
type OutputDecl struct {
	// Name is the output's name, unique within the task.
	Name string `yaml:"name" validate:"required"`

	// Path is the filesystem path the task produces, relative to the
	// workspace root unless absolute.
	Path string `yaml:"path" validate:"required"`
}

// ActionDecl declares the external command for a task.
type ActionDecl struct {
	// Command is the executable or shell command line.
	Command string `yaml:"command" validate:"required"`

	// Args are the command arguments. With no args, Command runs through
	// a shell.
	Args []string `yaml:"args,omitempty"`

	// Env are environment overrides for the invocation.
	Env map[string]string `yaml:"env,omitempty"`

	// WorkDir is the working directory, relative to the workspace root
	// unless absolute. Defaults to the workspace root.
	WorkDir string `yaml:"workdir,omitempty"`
}

// PublishDecl declares one published artifact.
type PublishDecl struct {
	// Name is the artifact name, unique across the whole workspace.
	Name string `yaml:"name" validate:"required"`

	// Type is the artifact type tag (e.g. "archive", "dir").
	Type string `yaml:"type" validate:"required"`

	// Output names the declaring task's output backing this artifact.
	Output string `yaml:"output" validate:"required"`
}
