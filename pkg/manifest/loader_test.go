package manifest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnbuild/kiln/pkg/engine"
)

const validManifest = `
version: "1"
projects:
  - name: lib
    tasks:
      - name: compile
        inputs:
          - name: source
            kind: dir
            path: lib/src
        outputs:
          - name: archive
            path: lib/out/lib.tar
        action:
          command: make
          args: ["archive"]
          workdir: lib
        publishes:
          - name: libcore
            type: archive
            output: archive
  - name: app
    tasks:
      - name: build
        depends_on: ["lib:compile"]
        consumes: ["libcore"]
        inputs:
          - name: source
            kind: dir
            path: app/src
          - name: mode
            kind: literal
            value: release
        outputs:
          - name: bin
            path: app/out/app
        action:
          command: ./build.sh
      - name: test
        depends_on: ["build"]
        action:
          command: ./test.sh
`

func TestLoader_ParseValid(t *testing.T) {
	m, err := NewLoader().Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Projects) != 2 {
		t.Fatalf("Expected 2 projects, got %d", len(m.Projects))
	}
	if m.Projects[0].Name != "lib" || len(m.Projects[0].Tasks) != 1 {
		t.Errorf("Unexpected lib project: %+v", m.Projects[0])
	}
	if len(m.Projects[1].Tasks) != 2 {
		t.Errorf("Expected 2 app tasks, got %d", len(m.Projects[1].Tasks))
	}
}

func TestLoader_UnknownFieldRejected(t *testing.T) {
	data := `
version: "1"
projects:
  - name: app
    taks:
      - name: build
        action:
          command: make
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for unknown field")
	}
}

func TestLoader_MissingVersion(t *testing.T) {
	data := `
projects:
  - name: app
    tasks:
      - name: build
        action:
          command: make
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for missing version")
	}
}

func TestLoader_ColonInName(t *testing.T) {
	data := `
version: "1"
projects:
  - name: "app:extra"
    tasks:
      - name: build
        action:
          command: make
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for colon in project name")
	}
}

func TestLoader_DuplicateTaskName(t *testing.T) {
	data := `
version: "1"
projects:
  - name: app
    tasks:
      - name: build
        action:
          command: make
      - name: build
        action:
          command: make2
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for duplicate task name")
	}
	if !strings.Contains(err.Error(), "duplicate task name") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoader_LiteralWithoutValue(t *testing.T) {
	data := `
version: "1"
projects:
  - name: app
    tasks:
      - name: build
        inputs:
          - name: mode
            kind: literal
        action:
          command: make
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for literal input without value")
	}
}

func TestLoader_InvalidInputKind(t *testing.T) {
	data := `
version: "1"
projects:
  - name: app
    tasks:
      - name: build
        inputs:
          - name: source
            kind: socket
            path: app/src
        action:
          command: make
`
	_, err := NewLoader().Parse([]byte(data))
	if err == nil {
		t.Fatal("Expected error for invalid input kind")
	}
}

func TestBuildGraph_WiresDeclarations(t *testing.T) {
	m, err := NewLoader().Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	root := "/workspace"
	graph, err := BuildGraph(m, root)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	ids := graph.Tasks()
	want := []engine.TaskID{"lib:compile", "app:build", "app:test"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d tasks, got %v", len(want), ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("Expected task[%d]=%s, got %s", i, id, ids[i])
		}
	}

	build, ok := graph.Task("app:build")
	if !ok {
		t.Fatal("app:build not registered")
	}
	if build.Inputs[0].Path != filepath.Join(root, "app/src") {
		t.Errorf("Expected input resolved against root, got %s", build.Inputs[0].Path)
	}
	if build.Inputs[1].Kind != engine.InputLiteral || build.Inputs[1].Value != "release" {
		t.Errorf("Unexpected literal input: %+v", build.Inputs[1])
	}
	if build.Action.WorkDir != root {
		t.Errorf("Expected default workdir %s, got %s", root, build.Action.WorkDir)
	}

	// Bare dependency names stay in-project; artifact consumption adds
	// the producer edge.
	deps := graph.Dependencies("app:test")
	if len(deps) != 1 || deps[0] != "app:build" {
		t.Errorf("Expected app:test to depend on app:build, got %v", deps)
	}
	buildDeps := graph.Dependencies("app:build")
	if len(buildDeps) != 1 || buildDeps[0] != "lib:compile" {
		t.Errorf("Expected app:build to depend on lib:compile once, got %v", buildDeps)
	}

	compile, _ := graph.Task("lib:compile")
	if compile.Action.WorkDir != filepath.Join(root, "lib") {
		t.Errorf("Expected workdir resolved against root, got %s", compile.Action.WorkDir)
	}

	producer, ok := graph.ArtifactProducer("libcore")
	if !ok || producer != "lib:compile" {
		t.Errorf("Expected libcore produced by lib:compile, got %s", producer)
	}
}

func TestBuildGraph_AbsolutePathsKept(t *testing.T) {
	data := `
version: "1"
projects:
  - name: app
    tasks:
      - name: build
        inputs:
          - name: source
            kind: file
            path: /abs/main.c
        action:
          command: make
`
	m, err := NewLoader().Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	graph, err := BuildGraph(m, "/workspace")
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	task, _ := graph.Task("app:build")
	if task.Inputs[0].Path != "/abs/main.c" {
		t.Errorf("Expected absolute path untouched, got %s", task.Inputs[0].Path)
	}
}
