package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilnbuild/kiln/pkg/engine"
)

func buildGraph(t *testing.T, tasks ...*engine.Task) *engine.Graph {
	t.Helper()
	g := engine.NewGraph()
	for _, task := range tasks {
		if err := g.Register(task); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if err := g.Resolve(); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return g
}

func TestNew_CollectsFilesystemInputs(t *testing.T) {
	a := &engine.Task{
		ID: "app:a", Project: "app", Name: "a",
		Inputs: []engine.InputSpec{
			{Name: "src", Kind: engine.InputDir, Path: "/ws/src"},
			{Name: "cfg", Kind: engine.InputFile, Path: "/ws/config.yaml"},
			{Name: "mode", Kind: engine.InputLiteral, Value: "release"},
		},
		Action: engine.ActionSpec{Command: "true"},
	}
	b := &engine.Task{
		ID: "app:b", Project: "app", Name: "b",
		Inputs: []engine.InputSpec{
			{Name: "src", Kind: engine.InputDir, Path: "/ws/src"},
		},
		Action: engine.ActionSpec{Command: "true"},
	}
	g := buildGraph(t, a, b)

	w := New(g, []engine.TaskID{"app:a", "app:b"}, func([]string) {})
	if len(w.paths) != 2 {
		t.Fatalf("Expected 2 deduplicated paths, got %v", w.paths)
	}
	for _, p := range w.paths {
		if p != "/ws/src" && p != "/ws/config.yaml" {
			t.Errorf("Unexpected watched path: %s", p)
		}
	}
}

func TestWatcher_FiresOnFileChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "main.src")
	if err := os.WriteFile(input, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	task := &engine.Task{
		ID: "app:compile", Project: "app", Name: "compile",
		Inputs: []engine.InputSpec{{Name: "src", Kind: engine.InputFile, Path: input}},
		Action: engine.ActionSpec{Command: "true"},
	}
	g := buildGraph(t, task)

	fired := make(chan []string, 1)
	w := New(g, []engine.TaskID{"app:compile"}, func(changed []string) {
		select {
		case fired <- changed:
		default:
		}
	})
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to install watches before changing the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(input, []byte("v2"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case changed := <-fired:
		if len(changed) == 0 {
			t.Error("Expected at least one changed path")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Watcher did not fire on file change")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watcher did not stop on cancel")
	}
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	task := &engine.Task{
		ID: "app:compile", Project: "app", Name: "compile",
		Inputs: []engine.InputSpec{{Name: "src", Kind: engine.InputDir, Path: dir}},
		Action: engine.ActionSpec{Command: "true"},
	}
	g := buildGraph(t, task)

	fires := make(chan struct{}, 16)
	w := New(g, []engine.TaskID{"app:compile"}, func([]string) {
		fires <- struct{}{}
	})
	w.SetDebounce(200 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// A burst of writes inside the debounce window yields one trigger.
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "f.txt")
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-fires:
	case <-time.After(3 * time.Second):
		t.Fatal("Watcher did not fire for burst")
	}
	select {
	case <-fires:
		t.Error("Expected burst coalesced into a single trigger")
	case <-time.After(500 * time.Millisecond):
	}
}
