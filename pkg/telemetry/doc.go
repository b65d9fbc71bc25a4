// Package telemetry provides structured logging and metrics for kiln.
//
// Logging is built on zerolog with kiln-specific field helpers (run IDs,
// task IDs, component names) and context plumbing. Metrics are Prometheus
// collectors behind a no-op guard, served over HTTP only in long-lived
// modes. RunObserver adapts both into the executor's event sink.
package telemetry
