package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// MemoryStore implements the Store interface in process memory. It is used
// by tests and ephemeral invocations where incremental state should not
// outlive the process.
type MemoryStore struct {
	mu           sync.RWMutex
	fingerprints map[engine.TaskID]*engine.FingerprintRecord
	runs         map[string]*RunRecord
	taskResults  map[string][]*TaskResultRecord
	events       []*Event
	nextEventID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fingerprints: make(map[engine.TaskID]*engine.FingerprintRecord),
		runs:         make(map[string]*RunRecord),
		taskResults:  make(map[string][]*TaskResultRecord),
		nextEventID:  1,
	}
}

// Init is a no-op for the memory store.
func (s *MemoryStore) Init(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Migrate is a no-op for the memory store.
func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

// GetFingerprint returns the record for a task, or (nil, nil) if absent.
func (s *MemoryStore) GetFingerprint(_ context.Context, id engine.TaskID) (*engine.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.fingerprints[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// PutFingerprint replaces the record for a task.
func (s *MemoryStore) PutFingerprint(_ context.Context, record *engine.FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.fingerprints[record.TaskID] = &clone
	return nil
}

// DeleteFingerprint removes the record for a task.
func (s *MemoryStore) DeleteFingerprint(_ context.Context, id engine.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprints, id)
	return nil
}

// ResetFingerprints deletes all fingerprint records.
func (s *MemoryStore) ResetFingerprints(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints = make(map[engine.TaskID]*engine.FingerprintRecord)
	return nil
}

// RecordRunStart persists the initial state of an invocation.
func (s *MemoryStore) RecordRunStart(_ context.Context, report *engine.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.runs[report.ID] = &RunRecord{
		ID:        report.ID,
		Status:    string(report.Status),
		StartedAt: report.StartedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// RecordRunFinish persists the final state of an invocation.
func (s *MemoryStore) RecordRunFinish(_ context.Context, report *engine.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[report.ID]
	if !ok {
		return fmt.Errorf("run not found: %s", report.ID)
	}
	completed := report.CompletedAt
	run.Status = string(report.Status)
	run.CompletedAt = &completed
	run.UpdatedAt = time.Now()

	results := make([]*TaskResultRecord, 0, len(report.Results))
	for _, r := range report.Results {
		record := &TaskResultRecord{
			RunID:      report.ID,
			TaskID:     string(r.TaskID),
			Status:     string(r.Status),
			Duration:   r.Duration,
			RecordedAt: time.Now(),
		}
		if r.Action != nil {
			code := r.Action.ExitCode
			record.ExitCode = &code
		}
		if r.Error != nil {
			msg := r.Error.Error()
			record.Error = &msg
		}
		results = append(results, record)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	s.taskResults[report.ID] = results
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	clone := *run
	return &clone, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	runs := make([]*RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		clone := *run
		runs = append(runs, &clone)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListTaskResults returns the per-task outcomes of a run.
func (s *MemoryStore) ListTaskResults(_ context.Context, runID string) ([]*TaskResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.taskResults[runID]
	out := make([]*TaskResultRecord, len(results))
	for i, r := range results {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

// AppendEvent appends an event to the log.
func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *event
	clone.ID = s.nextEventID
	s.nextEventID++
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	s.events = append(s.events, &clone)
	return nil
}

// ListEvents returns events for a run, oldest first.
func (s *MemoryStore) ListEvents(_ context.Context, runID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]*Event, 0)
	for _, e := range s.events {
		if e.RunID != runID {
			continue
		}
		clone := *e
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// HealthCheck always succeeds for the memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }
