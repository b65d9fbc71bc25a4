package telemetry

import (
	"github.com/kilnbuild/kiln/pkg/engine"
)

// RunObserver bridges executor events into structured logs and metrics. It
// implements engine.EventSink.
type RunObserver struct {
	log     *Logger
	metrics *Metrics
}

// NewRunObserver creates an observer writing to the given logger and
// metrics collector.
func NewRunObserver(log *Logger, metrics *Metrics) *RunObserver {
	return &RunObserver{log: log, metrics: metrics}
}

// TaskStarted logs the start of a task action.
func (o *RunObserver) TaskStarted(task *engine.Task) {
	o.log.WithTaskID(string(task.ID)).Debug("task started")
}

// TaskFinished logs a task's terminal state and records task metrics.
func (o *RunObserver) TaskFinished(task *engine.Task, result *engine.TaskResult) {
	log := o.log.WithTaskID(string(result.TaskID))
	switch result.Status {
	case engine.TaskStatusSucceeded:
		log.Infof("task succeeded in %s", result.Duration)
	case engine.TaskStatusUpToDate:
		log.Info("task up-to-date, skipped")
	case engine.TaskStatusSkippedFailed:
		log.Warn("task skipped, dependency failed")
	case engine.TaskStatusCancelled:
		log.Warn("task cancelled")
	case engine.TaskStatusFailed:
		log.WithError(result.Error).Error("task failed")
	}

	if o.metrics != nil {
		o.metrics.TaskCompleted(task.Project, string(result.Status), result.Duration.Seconds())
	}
}

// RunFinished logs the invocation summary and records run metrics.
func (o *RunObserver) RunFinished(report *engine.RunReport) {
	s := report.Summary
	o.log.WithRunID(report.ID).Infof(
		"run %s: %d succeeded, %d up-to-date, %d failed, %d skipped, %d cancelled (%s)",
		report.Status, s.Succeeded, s.UpToDate, s.Failed, s.SkippedFailed, s.Cancelled,
		report.Duration)

	if o.metrics != nil {
		o.metrics.RunCompleted(string(report.Status), report.Duration.Seconds())
	}
}
