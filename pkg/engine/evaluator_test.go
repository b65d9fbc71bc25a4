package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// fileTask builds a task with one file input and one file output in dir.
func fileTask(t *testing.T, dir string) *Task {
	t.Helper()
	input := filepath.Join(dir, "main.src")
	writeFile(t, input, "package main")

	return &Task{
		ID:      "app:compile",
		Project: "app",
		Name:    "compile",
		Inputs:  []InputSpec{{Name: "source", Kind: InputFile, Path: input}},
		Outputs: []OutputSpec{{Name: "bin", Path: filepath.Join(dir, "app.bin")}},
		Action:  ActionSpec{Command: "compile", Args: []string{"main.src"}},
	}
}

func recordTask(t *testing.T, ctx context.Context, ev *Evaluator, store FingerprintStore, task *Task) {
	t.Helper()
	record, err := ev.Snapshot(ctx, task)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if err := store.PutFingerprint(ctx, record); err != nil {
		t.Fatalf("PutFingerprint failed: %v", err)
	}
}

func TestEvaluator_NoRecordMeansStale(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	ev := NewEvaluator(newFakeStore(), NewArtifactRegistry())
	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected task without a record to be stale")
	}
}

func TestEvaluator_UpToDateAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if !upToDate {
		t.Error("Expected task to be up-to-date after snapshot")
	}
}

func TestEvaluator_InputChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	writeFile(t, task.Inputs[0].Path, "package main // edited")

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected task to be stale after input change")
	}
}

func TestEvaluator_OutputTamperInvalidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	writeFile(t, task.Outputs[0].Path, "tampered")

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected task to be stale after output tamper")
	}
}

func TestEvaluator_MissingOutputIsStaleNotError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	if err := os.Remove(task.Outputs[0].Path); err != nil {
		t.Fatalf("Failed to remove output: %v", err)
	}

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("Expected no error for missing output, got: %v", err)
	}
	if upToDate {
		t.Error("Expected task to be stale when output is missing")
	}
}

func TestEvaluator_MissingInputIsHardError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	if err := os.Remove(task.Inputs[0].Path); err != nil {
		t.Fatalf("Failed to remove input: %v", err)
	}

	_, err := ev.IsUpToDate(ctx, task)
	if err == nil {
		t.Fatal("Expected error for missing declared input")
	}
	if Code(err) != ErrCodeMissingInput {
		t.Errorf("Expected code %s, got %s", ErrCodeMissingInput, Code(err))
	}
	if !IsRuntime(err) {
		t.Error("Expected runtime-class error")
	}
}

func TestEvaluator_ActionChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	task.Action.Args = []string{"main.src", "-O2"}

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected task to be stale after action change")
	}
}

func TestEvaluator_ForceBypassesRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)
	ev.Force(task.ID)

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected forced task to report stale")
	}
}

func TestEvaluator_LiteralInputChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	task.Inputs = append(task.Inputs, InputSpec{Name: "mode", Kind: InputLiteral, Value: "debug"})
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, NewArtifactRegistry())
	recordTask(t, ctx, ev, store, task)

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if !upToDate {
		t.Fatal("Expected up-to-date before literal change")
	}

	task.Inputs[1].Value = "release"
	upToDate, err = ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected task to be stale after literal value change")
	}
}

func TestEvaluator_SnapshotMissingOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	task := fileTask(t, dir)
	// Output never produced.

	ev := NewEvaluator(newFakeStore(), NewArtifactRegistry())
	_, err := ev.Snapshot(ctx, task)
	if err == nil {
		t.Fatal("Expected error for unproduced declared output")
	}
	if Code(err) != ErrCodeMissingOutput {
		t.Errorf("Expected code %s, got %s", ErrCodeMissingOutput, Code(err))
	}
}

func TestEvaluator_ConsumedArtifactChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	artifactPath := filepath.Join(dir, "lib.tar")
	writeFile(t, artifactPath, "v1")

	registry := NewArtifactRegistry()
	decl := ArtifactDecl{Name: "libcore", Type: "archive", Output: "archive"}
	if err := registry.Publish("lib:package", decl, artifactPath, "v1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	task := fileTask(t, dir)
	task.Consumes = []string{"libcore"}
	writeFile(t, task.Outputs[0].Path, "binary")

	store := newFakeStore()
	ev := NewEvaluator(store, registry)
	recordTask(t, ctx, ev, store, task)

	upToDate, err := ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if !upToDate {
		t.Fatal("Expected up-to-date before artifact change")
	}

	writeFile(t, artifactPath, "v2")
	upToDate, err = ev.IsUpToDate(ctx, task)
	if err != nil {
		t.Fatalf("IsUpToDate failed: %v", err)
	}
	if upToDate {
		t.Error("Expected consumer to be stale after artifact content change")
	}
}
