package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/kilnbuild/kiln/pkg/fingerprint"
)

// Evaluator decides whether a task may be skipped as up-to-date, by
// comparing current input/output fingerprints against the record from the
// task's last successful run.
//
// The evaluator covers the fingerprint half of the up-to-date contract; the
// dependency half (every upstream task satisfied in this invocation) is
// enforced by the executor, which only evaluates a task after all of its
// dependencies reached a satisfied terminal state.
type Evaluator struct {
	store    FingerprintStore
	registry *ArtifactRegistry

	// force lists tasks whose evaluation is bypassed entirely.
	force map[TaskID]bool
}

// NewEvaluator creates an evaluator backed by the given fingerprint store.
// The registry resolves consumed artifacts into effective inputs.
func NewEvaluator(store FingerprintStore, registry *ArtifactRegistry) *Evaluator {
	return &Evaluator{
		store:    store,
		registry: registry,
		force:    make(map[TaskID]bool),
	}
}

// Force marks tasks whose up-to-date evaluation is bypassed; they always
// report out-of-date.
func (e *Evaluator) Force(ids ...TaskID) {
	for _, id := range ids {
		e.force[id] = true
	}
}

// IsUpToDate reports whether the task may be skipped. A task is up-to-date
// iff a prior successful record exists, the action descriptor is unchanged,
// every current input digest matches its recorded counterpart, and every
// declared output still exists with a matching digest.
//
// A missing input file is not an up-to-date disqualifier: it is a hard
// MISSING_INPUT error that fails the task. A missing or modified output
// only makes the task stale.
func (e *Evaluator) IsUpToDate(ctx context.Context, task *Task) (bool, error) {
	if e.force[task.ID] {
		return false, nil
	}

	record, err := e.store.GetFingerprint(ctx, task.ID)
	if err != nil {
		return false, NewRuntimeError("failed to load fingerprint record", err).
			WithCode(ErrCodeStore).WithTask(task.ID)
	}
	if record == nil {
		return false, nil
	}

	if record.ActionDigest != task.Action.Digest() {
		return false, nil
	}

	inputs, err := e.inputDigests(task)
	if err != nil {
		return false, err
	}
	if len(inputs) != len(record.Inputs) {
		return false, nil
	}
	for name, digest := range inputs {
		if record.Inputs[name] != digest {
			return false, nil
		}
	}

	for _, out := range task.Outputs {
		digest, err := fingerprint.Path(out.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, NewRuntimeError(
				fmt.Sprintf("failed to fingerprint output %s", out.Name), err).
				WithTask(task.ID).WithOperation("evaluate")
		}
		if record.Outputs[out.Name] != digest {
			return false, nil
		}
	}

	return true, nil
}

// Snapshot captures the task's current fingerprint record, immediately
// after a successful run. A declared output that does not exist at this
// point is a MISSING_OUTPUT error: the action claimed success without
// producing what the task declared.
func (e *Evaluator) Snapshot(ctx context.Context, task *Task) (*FingerprintRecord, error) {
	inputs, err := e.inputDigests(task)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(task.Outputs))
	for _, out := range task.Outputs {
		digest, err := fingerprint.Path(out.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, NewRuntimeError(
					fmt.Sprintf("declared output %s was not produced at %s", out.Name, out.Path), err).
					WithCode(ErrCodeMissingOutput).WithTask(task.ID)
			}
			return nil, NewRuntimeError(
				fmt.Sprintf("failed to fingerprint output %s", out.Name), err).
				WithTask(task.ID).WithOperation("snapshot")
		}
		outputs[out.Name] = digest
	}

	_ = ctx
	return &FingerprintRecord{
		TaskID:       task.ID,
		Inputs:       inputs,
		Outputs:      outputs,
		ActionDigest: task.Action.Digest(),
		RecordedAt:   time.Now(),
	}, nil
}

// inputDigests computes the digests of all declared inputs plus the backing
// paths of consumed artifacts.
func (e *Evaluator) inputDigests(task *Task) (map[string]string, error) {
	digests := make(map[string]string, len(task.Inputs)+len(task.Consumes))

	for _, in := range task.Inputs {
		switch in.Kind {
		case InputLiteral:
			digests[in.Name] = fingerprint.Literal(in.Name, in.Value)
		case InputFile, InputDir:
			digest, err := fingerprint.Path(in.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, NewRuntimeError(
						fmt.Sprintf("declared input %s is missing at %s", in.Name, in.Path), err).
						WithCode(ErrCodeMissingInput).WithTask(task.ID)
				}
				return nil, NewRuntimeError(
					fmt.Sprintf("failed to fingerprint input %s", in.Name), err).
					WithTask(task.ID).WithOperation("evaluate")
			}
			digests[in.Name] = digest
		}
	}

	for _, name := range task.Consumes {
		artifact, err := e.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		digest, err := fingerprint.Path(artifact.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, NewRuntimeError(
					fmt.Sprintf("consumed artifact %s is missing at %s", name, artifact.Path), err).
					WithCode(ErrCodeMissingInput).WithTask(task.ID)
			}
			return nil, NewRuntimeError(
				fmt.Sprintf("failed to fingerprint artifact %s", name), err).
				WithTask(task.ID).WithOperation("evaluate")
		}
		digests["artifact:"+name] = digest
	}

	return digests, nil
}
