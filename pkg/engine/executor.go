package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventSink receives execution lifecycle notifications. All methods are
// called synchronously from executor goroutines and must be fast and
// concurrency-safe. A nil sink disables notifications.
type EventSink interface {
	// TaskStarted is called immediately before a task's action is invoked.
	TaskStarted(task *Task)

	// TaskFinished is called once a task reaches a terminal state.
	TaskFinished(task *Task, result *TaskResult)

	// RunFinished is called once the whole invocation completes.
	RunFinished(report *RunReport)
}

// Options configures one executor instance.
type Options struct {
	// Workers bounds the number of concurrently running tasks. Defaults
	// to 4.
	Workers int

	// FailFast stops starting new tasks after the first failure.
	// Already-running actions are allowed to finish.
	FailFast bool

	// DryRun evaluates up-to-dateness and reports what would run without
	// invoking actions or touching the fingerprint store.
	DryRun bool

	// Force lists tasks whose up-to-date evaluation is bypassed.
	Force []TaskID

	// Recorder persists run history. Optional.
	Recorder RunRecorder

	// Sink receives execution events. Optional.
	Sink EventSink
}

// Executor runs the task graph: it schedules the dependency closure of the
// requested targets level by level, skips up-to-date tasks, invokes actions
// for the rest through a bounded worker pool, and records fingerprints and
// artifacts on success.
//
// Ordering guarantee: for any dependency path A -> ... -> B, A reaches a
// terminal state before B is evaluated or started. Tasks with no dependency
// relationship may interleave freely.
type Executor struct {
	graph     *Graph
	store     FingerprintStore
	runner    ActionRunner
	registry  *ArtifactRegistry
	evaluator *Evaluator
	opts      Options

	// cancelled flips once when fail-fast triggers or the context ends;
	// workers consult it between scheduling steps, never mid-action.
	cancelled atomic.Bool

	mu      sync.RWMutex
	status  map[TaskID]TaskStatus
	results map[TaskID]*TaskResult
}

// NewExecutor creates an executor over the given graph. The store holds
// fingerprint records across invocations; the runner invokes external
// actions.
func NewExecutor(graph *Graph, store FingerprintStore, runner ActionRunner, opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	registry := NewArtifactRegistry()
	evaluator := NewEvaluator(store, registry)
	evaluator.Force(opts.Force...)

	return &Executor{
		graph:     graph,
		store:     store,
		runner:    runner,
		registry:  registry,
		evaluator: evaluator,
		opts:      opts,
		status:    make(map[TaskID]TaskStatus),
		results:   make(map[TaskID]*TaskResult),
	}
}

// Registry returns the artifact registry for this invocation.
func (e *Executor) Registry() *ArtifactRegistry {
	return e.registry
}

// Run executes the dependency closure of the requested targets and returns
// the per-task result report. Configuration-class errors (unknown target,
// cycle) abort before any task runs and are returned as the error; runtime
// failures are contained to the affected subgraph and expressed in the
// report's statuses.
func (e *Executor) Run(ctx context.Context, targets []TaskID) (*RunReport, error) {
	closure, err := e.graph.Closure(targets)
	if err != nil {
		return nil, err
	}
	levels, err := e.graph.Levels(closure)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		ID:        uuid.New().String(),
		Targets:   targets,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Results:   make(map[TaskID]*TaskResult, len(closure)),
	}

	e.mu.Lock()
	for _, id := range closure {
		e.status[id] = TaskStatusPending
	}
	e.mu.Unlock()

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordRunStart(ctx, report); err != nil {
			return nil, NewRuntimeError("failed to record run start", err).WithCode(ErrCodeStore)
		}
	}

	for _, level := range levels {
		if e.cancelled.Load() || ctx.Err() != nil {
			e.cancelled.Store(true)
			e.markCancelled(level)
			continue
		}
		e.runLevel(ctx, level)
	}

	e.finalize(report, closure)

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordRunFinish(ctx, report); err != nil {
			return report, NewRuntimeError("failed to record run finish", err).WithCode(ErrCodeStore)
		}
	}
	if e.opts.Sink != nil {
		e.opts.Sink.RunFinished(report)
	}

	return report, nil
}

// runLevel executes all tasks of one topological level through a bounded
// worker pool. The queue preserves declaration order; workers drain it
// concurrently.
func (e *Executor) runLevel(ctx context.Context, level []TaskID) {
	workers := e.opts.Workers
	if len(level) < workers {
		workers = len(level)
	}

	queue := make(chan TaskID, len(level))
	for _, id := range level {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				if e.cancelled.Load() || ctx.Err() != nil {
					e.cancelled.Store(true)
					e.markCancelled([]TaskID{id})
					continue
				}
				e.executeTask(ctx, id)
			}
		}()
	}
	wg.Wait()
}

// executeTask drives one task to a terminal state: dependency check,
// up-to-date evaluation, action invocation, fingerprint recording, artifact
// publishing.
func (e *Executor) executeTask(ctx context.Context, id TaskID) {
	task, ok := e.graph.Task(id)
	if !ok {
		e.finish(nil, &TaskResult{
			TaskID: id, Status: TaskStatusFailed, StartedAt: time.Now(),
			Error: NewInternalError("task disappeared from graph", nil).WithCode(ErrCodeInternal).WithTask(id),
		})
		return
	}

	result := &TaskResult{TaskID: id, StartedAt: time.Now()}

	if failedDep := e.unsatisfiedDependency(id); failedDep != "" {
		result.Status = TaskStatusSkippedFailed
		result.Error = NewRuntimeError(
			fmt.Sprintf("dependency %s did not succeed", failedDep), nil).
			WithCode(ErrCodeDependencyFailed).WithTask(id)
		e.finish(task, result)
		return
	}

	upToDate, err := e.evaluator.IsUpToDate(ctx, task)
	if err != nil {
		if e.opts.DryRun {
			// A dry run previews the schedule; evaluation faults only mean
			// the task would run.
			upToDate = false
		} else {
			result.Status = TaskStatusFailed
			result.Error = asBuildError(err, id)
			e.finish(task, result)
			e.failFast()
			return
		}
	}

	if upToDate {
		if err := e.publishFromRecord(ctx, task); err != nil {
			result.Status = TaskStatusFailed
			result.Error = asBuildError(err, id)
			e.finish(task, result)
			e.failFast()
			return
		}
		result.Status = TaskStatusUpToDate
		e.finish(task, result)
		return
	}

	if e.opts.DryRun {
		e.publishDryRun(task)
		result.Status = TaskStatusSucceeded
		e.finish(task, result)
		return
	}

	e.setStatus(id, TaskStatusRunning)
	if e.opts.Sink != nil {
		e.opts.Sink.TaskStarted(task)
	}

	action, err := e.runner.Run(ctx, task.Action)
	result.Action = action
	if err != nil {
		result.Status = TaskStatusFailed
		result.Error = NewRuntimeError("action could not be executed", err).
			WithCode(ErrCodeActionFailed).WithTask(id)
		e.finish(task, result)
		e.failFast()
		return
	}
	if action.ExitCode != 0 {
		result.Status = TaskStatusFailed
		result.Error = NewRuntimeError(
			fmt.Sprintf("action exited with status %d", action.ExitCode), nil).
			WithCode(ErrCodeActionFailed).WithTask(id)
		e.finish(task, result)
		e.failFast()
		return
	}

	record, err := e.evaluator.Snapshot(ctx, task)
	if err != nil {
		result.Status = TaskStatusFailed
		result.Error = asBuildError(err, id)
		e.finish(task, result)
		e.failFast()
		return
	}
	if err := e.store.PutFingerprint(ctx, record); err != nil {
		result.Status = TaskStatusFailed
		result.Error = NewRuntimeError("failed to record fingerprints", err).
			WithCode(ErrCodeStore).WithTask(id)
		e.finish(task, result)
		e.failFast()
		return
	}
	if err := e.publish(task, record); err != nil {
		result.Status = TaskStatusFailed
		result.Error = asBuildError(err, id)
		e.finish(task, result)
		e.failFast()
		return
	}

	result.Status = TaskStatusSucceeded
	e.finish(task, result)
}

// unsatisfiedDependency returns the first dependency that did not reach a
// satisfied terminal state, or "".
func (e *Executor) unsatisfiedDependency(id TaskID) TaskID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, dep := range e.graph.Dependencies(id) {
		if status, scheduled := e.status[dep]; scheduled && !status.Satisfied() {
			return dep
		}
	}
	return ""
}

// publish records the task's declared artifacts from a fresh fingerprint
// record.
func (e *Executor) publish(task *Task, record *FingerprintRecord) error {
	for _, decl := range task.Publishes {
		out, _ := task.Output(decl.Output)
		if err := e.registry.Publish(task.ID, decl, out.Path, record.Outputs[decl.Output]); err != nil {
			return err
		}
	}
	return nil
}

// publishFromRecord republishes artifacts for an up-to-date producer, using
// the digests captured on its last successful run.
func (e *Executor) publishFromRecord(ctx context.Context, task *Task) error {
	if len(task.Publishes) == 0 {
		return nil
	}
	record, err := e.store.GetFingerprint(ctx, task.ID)
	if err != nil {
		return NewRuntimeError("failed to load fingerprint record", err).
			WithCode(ErrCodeStore).WithTask(task.ID)
	}
	if record == nil {
		return NewInternalError("up-to-date task has no fingerprint record", nil).
			WithCode(ErrCodeInternal).WithTask(task.ID)
	}
	return e.publish(task, record)
}

// publishDryRun registers artifact placeholders so downstream consumers can
// still be evaluated during a dry run.
func (e *Executor) publishDryRun(task *Task) {
	for _, decl := range task.Publishes {
		out, _ := task.Output(decl.Output)
		_ = e.registry.Publish(task.ID, decl, out.Path, "")
	}
}

// setStatus records a non-terminal status transition.
func (e *Executor) setStatus(id TaskID, status TaskStatus) {
	e.mu.Lock()
	e.status[id] = status
	e.mu.Unlock()
}

// failFast flips the cancellation flag when fail-fast mode is configured.
func (e *Executor) failFast() {
	if e.opts.FailFast {
		e.cancelled.Store(true)
	}
}

// finish records a task's terminal result.
func (e *Executor) finish(task *Task, result *TaskResult) {
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	e.mu.Lock()
	e.status[result.TaskID] = result.Status
	e.results[result.TaskID] = result
	e.mu.Unlock()

	if e.opts.Sink != nil && task != nil {
		e.opts.Sink.TaskFinished(task, result)
	}
}

// markCancelled records cancelled results for tasks that never started.
func (e *Executor) markCancelled(ids []TaskID) {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if e.status[id] != TaskStatusPending {
			continue
		}
		e.status[id] = TaskStatusCancelled
		e.results[id] = &TaskResult{
			TaskID:      id,
			Status:      TaskStatusCancelled,
			StartedAt:   now,
			CompletedAt: now,
		}
	}
}

// finalize computes the run summary and overall status.
func (e *Executor) finalize(report *RunReport, closure []TaskID) {
	e.mu.RLock()
	for _, id := range closure {
		if r, ok := e.results[id]; ok {
			report.Results[id] = r
		}
	}
	e.mu.RUnlock()

	summary := RunSummary{Total: len(closure)}
	for _, r := range report.Results {
		switch r.Status {
		case TaskStatusSucceeded:
			summary.Succeeded++
		case TaskStatusUpToDate:
			summary.UpToDate++
		case TaskStatusFailed:
			summary.Failed++
		case TaskStatusSkippedFailed:
			summary.SkippedFailed++
		case TaskStatusCancelled:
			summary.Cancelled++
		}
	}
	report.Summary = summary

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)

	switch {
	case summary.Failed > 0 || summary.SkippedFailed > 0:
		report.Status = RunStatusFailed
	case summary.Cancelled > 0:
		report.Status = RunStatusCancelled
	default:
		report.Status = RunStatusSucceeded
	}
}

// asBuildError ensures an error carries task context and classification.
func asBuildError(err error, id TaskID) *BuildError {
	if be, ok := err.(*BuildError); ok {
		if be.Task == "" {
			be.Task = id
		}
		return be
	}
	return NewRuntimeError("task failed", err).WithTask(id)
}
