package manifest

import (
	"path/filepath"
	"strings"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// BuildGraph constructs the engine task graph from a validated manifest.
// Declared paths are resolved against the workspace root; the graph is
// resolved (explicit edges registered, artifact names bound) and ready for
// closure computation. Configuration errors surface as engine.BuildError.
func BuildGraph(m *Manifest, root string) (*engine.Graph, error) {
	graph := engine.NewGraph()

	for _, p := range m.Projects {
		for _, t := range p.Tasks {
			task := taskFromDecl(p.Name, t, root)
			if err := graph.Register(task); err != nil {
				return nil, err
			}
		}
	}

	if err := graph.Resolve(); err != nil {
		return nil, err
	}
	return graph, nil
}

// taskFromDecl is the factory mapping one declaration to a Task value.
func taskFromDecl(project string, d TaskDecl, root string) *engine.Task {
	task := &engine.Task{
		ID:       TaskID(project, d.Name),
		Project:  project,
		Name:     d.Name,
		Consumes: append([]string(nil), d.Consumes...),
	}

	for _, dep := range d.DependsOn {
		task.DependsOn = append(task.DependsOn, qualify(project, dep))
	}

	for _, in := range d.Inputs {
		spec := engine.InputSpec{
			Name: in.Name,
			Kind: engine.InputKind(in.Kind),
		}
		if spec.Kind == engine.InputLiteral {
			spec.Value = in.Value
		} else {
			spec.Path = resolvePath(root, in.Path)
		}
		task.Inputs = append(task.Inputs, spec)
	}

	for _, out := range d.Outputs {
		task.Outputs = append(task.Outputs, engine.OutputSpec{
			Name: out.Name,
			Path: resolvePath(root, out.Path),
		})
	}

	task.Action = engine.ActionSpec{
		Command: d.Action.Command,
		Args:    append([]string(nil), d.Action.Args...),
		Env:     d.Action.Env,
		WorkDir: resolvePath(root, d.Action.WorkDir),
	}
	if d.Action.WorkDir == "" {
		task.Action.WorkDir = root
	}

	for _, pub := range d.Publishes {
		task.Publishes = append(task.Publishes, engine.ArtifactDecl{
			Name:   pub.Name,
			Type:   pub.Type,
			Output: pub.Output,
		})
	}

	return task
}

// TaskID builds the project-qualified identity for a task.
func TaskID(project, name string) engine.TaskID {
	return engine.TaskID(project + ":" + name)
}

// qualify resolves a dependency reference: bare names stay within the
// declaring project, "project:task" crosses boundaries.
func qualify(project, ref string) engine.TaskID {
	if strings.Contains(ref, ":") {
		return engine.TaskID(ref)
	}
	return TaskID(project, ref)
}

// resolvePath joins a declared path with the workspace root unless the
// path is absolute or empty.
func resolvePath(root, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
