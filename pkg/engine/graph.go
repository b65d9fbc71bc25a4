package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// EdgeKind distinguishes explicitly declared dependency edges from edges
// implied by artifact consumption.
type EdgeKind string

const (
	// EdgeExplicit is a dependency declared directly on the task.
	EdgeExplicit EdgeKind = "explicit"

	// EdgeArtifact is a dependency implied by consuming a published artifact.
	EdgeArtifact EdgeKind = "artifact"
)

// artifactBinding records, at graph-build time, which task publishes a name.
type artifactBinding struct {
	decl     ArtifactDecl
	producer TaskID
}

// Graph is the directed acyclic graph of tasks with declared dependency
// edges and artifact-implied edges. All configuration-class validation
// (duplicate identities, unknown references, output ownership, cycles)
// happens here, before any task executes.
//
// Tie-breaking among independent tasks is by declaration order: within a
// topological level, tasks are queued in the order they were registered, so
// serial logs are reproducible while parallel workers may still interleave.
type Graph struct {
	tasks map[TaskID]*Task

	// seq preserves registration order for deterministic tie-breaking.
	seq []TaskID

	// dependents maps a task to the tasks that depend on it.
	dependents map[TaskID][]TaskID

	// dependencies maps a task to the tasks it depends on.
	dependencies map[TaskID][]TaskID

	// edges records the kind of each edge, keyed by dependent then
	// dependency.
	edges map[TaskID]map[TaskID]EdgeKind

	// outputs maps cleaned output paths to their owning task.
	outputs map[string]TaskID

	// artifacts maps artifact names to their producing task.
	artifacts map[string]artifactBinding

	resolved bool
}

// NewGraph creates an empty task graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:        make(map[TaskID]*Task),
		dependents:   make(map[TaskID][]TaskID),
		dependencies: make(map[TaskID][]TaskID),
		edges:        make(map[TaskID]map[TaskID]EdgeKind),
		outputs:      make(map[string]TaskID),
		artifacts:    make(map[string]artifactBinding),
	}
}

// Register adds a task to the graph. It fails with a configuration error on
// a duplicate task identity, a duplicate artifact name, an output path
// already owned by another task, or an artifact declaration referencing an
// undeclared output.
func (g *Graph) Register(t *Task) error {
	if t == nil || t.ID == "" {
		return NewConfigurationError("task has empty identity", nil).
			WithCode(ErrCodeValidation)
	}
	if _, exists := g.tasks[t.ID]; exists {
		return NewConfigurationError(fmt.Sprintf("duplicate task identity: %s", t.ID), nil).
			WithCode(ErrCodeDuplicateTask).WithTask(t.ID)
	}
	for _, in := range t.Inputs {
		if err := in.Kind.Validate(); err != nil {
			return NewConfigurationError("invalid input spec", err).
				WithCode(ErrCodeValidation).WithTask(t.ID)
		}
	}
	for _, out := range t.Outputs {
		path := filepath.Clean(out.Path)
		if owner, taken := g.outputs[path]; taken {
			return NewConfigurationError(
				fmt.Sprintf("output %s already owned by task %s", path, owner), nil).
				WithCode(ErrCodeDuplicateOutput).WithTask(t.ID)
		}
		g.outputs[path] = t.ID
	}
	for _, pub := range t.Publishes {
		if _, ok := t.Output(pub.Output); !ok {
			return NewConfigurationError(
				fmt.Sprintf("artifact %s references undeclared output %s", pub.Name, pub.Output), nil).
				WithCode(ErrCodeValidation).WithTask(t.ID)
		}
		if prev, taken := g.artifacts[pub.Name]; taken {
			return NewConfigurationError(
				fmt.Sprintf("artifact %s already published by task %s", pub.Name, prev.producer), nil).
				WithCode(ErrCodeDuplicateArtifact).WithTask(t.ID)
		}
		g.artifacts[pub.Name] = artifactBinding{decl: pub, producer: t.ID}
	}

	g.tasks[t.ID] = t
	g.seq = append(g.seq, t.ID)
	g.resolved = false
	return nil
}

// AddDependency adds an explicit edge from taskID to dependsOn. It fails
// with a configuration error if either side is absent.
func (g *Graph) AddDependency(taskID, dependsOn TaskID) error {
	return g.addEdge(taskID, dependsOn, EdgeExplicit)
}

func (g *Graph) addEdge(taskID, dependsOn TaskID, kind EdgeKind) error {
	if _, ok := g.tasks[taskID]; !ok {
		return NewConfigurationError(fmt.Sprintf("unknown task: %s", taskID), nil).
			WithCode(ErrCodeUnknownTask).WithTask(taskID)
	}
	if _, ok := g.tasks[dependsOn]; !ok {
		return NewConfigurationError(
			fmt.Sprintf("task %s depends on unknown task %s", taskID, dependsOn), nil).
			WithCode(ErrCodeUnknownTask).WithTask(taskID)
	}
	if g.edges[taskID] == nil {
		g.edges[taskID] = make(map[TaskID]EdgeKind)
	}
	if _, dup := g.edges[taskID][dependsOn]; dup {
		return nil
	}
	g.edges[taskID][dependsOn] = kind
	g.dependencies[taskID] = append(g.dependencies[taskID], dependsOn)
	g.dependents[dependsOn] = append(g.dependents[dependsOn], taskID)
	return nil
}

// Resolve finalizes the graph: it registers each task's explicit dependency
// declarations, binds consumed artifact names to their producers, and adds
// the implied consumer-to-producer edges. It must be called once after all
// tasks are registered and before Closure.
func (g *Graph) Resolve() error {
	for _, id := range g.seq {
		t := g.tasks[id]
		for _, dep := range t.DependsOn {
			if err := g.AddDependency(id, dep); err != nil {
				return err
			}
		}
	}
	for _, id := range g.seq {
		t := g.tasks[id]
		for _, name := range t.Consumes {
			binding, ok := g.artifacts[name]
			if !ok {
				return NewConfigurationError(
					fmt.Sprintf("task %s consumes unpublished artifact %s", id, name), nil).
					WithCode(ErrCodeUnresolvedArtifact).WithTask(id)
			}
			if err := g.addEdge(id, binding.producer, EdgeArtifact); err != nil {
				return err
			}
		}
	}
	g.resolved = true
	return nil
}

// Task returns the task with the given identity.
func (g *Graph) Task(id TaskID) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all task identities in declaration order.
func (g *Graph) Tasks() []TaskID {
	out := make([]TaskID, len(g.seq))
	copy(out, g.seq)
	return out
}

// Dependencies returns the identities the given task depends on, explicit
// and artifact-implied.
func (g *Graph) Dependencies(id TaskID) []TaskID {
	deps := g.dependencies[id]
	out := make([]TaskID, len(deps))
	copy(out, deps)
	return out
}

// ArtifactProducer returns the task bound to publish the named artifact.
func (g *Graph) ArtifactProducer(name string) (TaskID, bool) {
	b, ok := g.artifacts[name]
	return b.producer, ok
}

// Closure returns the minimal set of tasks needed to satisfy the targets:
// the targets plus all transitive dependencies, in declaration order. It
// fails with a configuration error on an unknown target or a dependency
// cycle; the cycle error names the cycle's task identities in order.
func (g *Graph) Closure(targets []TaskID) ([]TaskID, error) {
	if !g.resolved {
		if err := g.Resolve(); err != nil {
			return nil, err
		}
	}

	seen := make(map[TaskID]bool)
	var visit func(id TaskID)
	visit = func(id TaskID) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, dep := range g.dependencies[id] {
			visit(dep)
		}
	}
	for _, id := range targets {
		if _, ok := g.tasks[id]; !ok {
			return nil, NewConfigurationError(fmt.Sprintf("unknown target task: %s", id), nil).
				WithCode(ErrCodeUnknownTask).WithTask(id)
		}
		visit(id)
	}

	if cycle := g.findCycle(seen); cycle != nil {
		return nil, NewConfigurationError(
			fmt.Sprintf("dependency cycle detected: %s", formatCycle(cycle)), nil).
			WithCode(ErrCodeCyclicDependency)
	}

	out := make([]TaskID, 0, len(seen))
	for _, id := range g.seq {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// findCycle runs a DFS over the dependency edges of the given task set and
// returns the first cycle found as an ordered path, or nil.
func (g *Graph) findCycle(set map[TaskID]bool) []TaskID {
	visited := make(map[TaskID]bool)
	onStack := make(map[TaskID]bool)
	var stack []TaskID
	var cycle []TaskID

	var dfs func(id TaskID) bool
	dfs = func(id TaskID) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range g.dependencies[id] {
			if !set[dep] {
				continue
			}
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			} else if onStack[dep] {
				start := 0
				for i, sid := range stack {
					if sid == dep {
						start = i
						break
					}
				}
				cycle = append(append([]TaskID{}, stack[start:]...), dep)
				return true
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.seq {
		if set[id] && !visited[id] {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// Levels computes topological execution levels for the given task set using
// Kahn's algorithm. Tasks at the same level have no dependency relationship
// and may run in parallel; within a level, tasks are ordered by declaration.
func (g *Graph) Levels(ids []TaskID) ([][]TaskID, error) {
	set := make(map[TaskID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	inDegree := make(map[TaskID]int, len(ids))
	for _, id := range ids {
		for _, dep := range g.dependencies[id] {
			if set[dep] {
				inDegree[id]++
			}
		}
	}

	current := make([]TaskID, 0)
	for _, id := range g.seq {
		if set[id] && inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	levels := make([][]TaskID, 0)
	processed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		processed += len(current)

		nextSet := make(map[TaskID]bool)
		for _, id := range current {
			for _, dependent := range g.dependents[id] {
				if !set[dependent] {
					continue
				}
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					nextSet[dependent] = true
				}
			}
		}

		next := make([]TaskID, 0, len(nextSet))
		for _, id := range g.seq {
			if nextSet[id] {
				next = append(next, id)
			}
		}
		current = next
	}

	// Cycle detection runs in Closure; a shortfall here means the set was
	// built some other way or the graph mutated mid-run.
	if processed != len(ids) {
		return nil, NewInternalError("failed to level all tasks, graph may contain a cycle", nil).
			WithCode(ErrCodeInternal)
	}
	return levels, nil
}

// ToDOT generates a Graphviz representation of the given task set, grouped
// by project. Artifact-implied edges are rendered dashed.
func (g *Graph) ToDOT(ids []TaskID) string {
	set := make(map[TaskID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	byProject := make(map[string][]TaskID)
	projects := make([]string, 0)
	for _, id := range ids {
		t := g.tasks[id]
		if _, seen := byProject[t.Project]; !seen {
			projects = append(projects, t.Project)
		}
		byProject[t.Project] = append(byProject[t.Project], id)
	}
	sort.Strings(projects)

	var sb strings.Builder
	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i, project := range projects {
		fmt.Fprintf(&sb, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&sb, "    label=%q;\n", project)
		sb.WriteString("    style=dashed;\n")
		for _, id := range byProject[project] {
			fmt.Fprintf(&sb, "    %q [label=%q];\n", string(id), g.tasks[id].Name)
		}
		sb.WriteString("  }\n\n")
	}

	for _, id := range ids {
		for _, dep := range g.dependencies[id] {
			if !set[dep] {
				continue
			}
			style := "style=solid"
			if g.edges[id][dep] == EdgeArtifact {
				style = "style=dashed, color=blue"
			}
			fmt.Fprintf(&sb, "  %q -> %q [%s];\n", string(id), string(dep), style)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []TaskID) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}
