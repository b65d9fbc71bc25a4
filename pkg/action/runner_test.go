package action

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnbuild/kiln/pkg/engine"
)

func TestProcessRunner_ArgsForm(t *testing.T) {
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "echo",
		Args:    []string{"hello", "world"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("Unexpected stdout: %q", result.Stdout)
	}
}

func TestProcessRunner_ShellForm(t *testing.T) {
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "echo one && echo two",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "one") || !strings.Contains(result.Stdout, "two") {
		t.Errorf("Expected shell chaining, got %q", result.Stdout)
	}
}

func TestProcessRunner_NonZeroExit(t *testing.T) {
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "echo oops >&2; exit 3",
	})
	if err != nil {
		t.Fatalf("Expected non-zero exit via result, got error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("Expected stderr captured, got %q", result.Stderr)
	}
}

func TestProcessRunner_CommandNotFound(t *testing.T) {
	r := NewProcessRunner()
	_, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "kiln-no-such-binary-zz",
		Args:    []string{"x"},
	})
	if err == nil {
		t.Fatal("Expected error for unrunnable command")
	}
}

func TestProcessRunner_EmptyCommand(t *testing.T) {
	r := NewProcessRunner()
	if _, err := r.Run(context.Background(), engine.ActionSpec{}); err == nil {
		t.Fatal("Expected error for empty command")
	}
}

func TestProcessRunner_EnvOverride(t *testing.T) {
	t.Setenv("KILN_TEST_BASE", "base")
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "echo $KILN_TEST_BASE $KILN_TEST_MODE",
		Env:     map[string]string{"KILN_TEST_MODE": "release"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "base release" {
		t.Errorf("Expected overrides merged onto parent env, got %q", result.Stdout)
	}
}

func TestProcessRunner_WorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "pwd",
		WorkDir: dir,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected workdir %s, got %s", want, got)
	}
}

func TestProcessRunner_WritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	r := NewProcessRunner()
	result, err := r.Run(context.Background(), engine.ActionSpec{
		Command: "echo built > out.txt",
		WorkDir: dir,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("Expected exit 0, got %d", result.ExitCode)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected output file written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "built" {
		t.Errorf("Unexpected output content: %q", data)
	}
}
