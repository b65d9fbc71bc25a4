// Package action invokes a task's opaque external command. The engine
// interprets nothing about the invocation beyond its exit code.
package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// defaultShell runs argument-less commands so manifests can use shell
// syntax (pipes, redirects) without declaring an explicit interpreter.
const defaultShell = "/bin/sh"

// ProcessRunner executes actions as local child processes. It implements
// engine.ActionRunner.
type ProcessRunner struct {
	// Shell overrides the interpreter for argument-less commands.
	Shell string
}

// NewProcessRunner creates a runner using the default shell.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{}
}

// Run executes the action and returns its outcome. A non-zero exit status
// is reported through the result; an error return means the process could
// not be run at all (command not found, bad working directory, cancelled
// context).
func (r *ProcessRunner) Run(ctx context.Context, spec engine.ActionSpec) (*engine.ActionResult, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("action command is required")
	}

	var cmd *exec.Cmd
	if len(spec.Args) > 0 {
		cmd = exec.CommandContext(ctx, spec.Command, spec.Args...)
	} else {
		shell := r.Shell
		if shell == "" {
			shell = defaultShell
		}
		cmd = exec.CommandContext(ctx, shell, "-c", spec.Command)
	}

	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}

	// Overrides are applied on top of the parent environment, the way
	// build tools pass toolchain flags through.
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &engine.ActionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}
