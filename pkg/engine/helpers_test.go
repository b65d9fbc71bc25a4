package engine

import (
	"context"
	"sync"
)

// fakeStore is an in-memory FingerprintStore for tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[TaskID]*FingerprintRecord
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[TaskID]*FingerprintRecord)}
}

func (s *fakeStore) GetFingerprint(_ context.Context, id TaskID) (*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records[id], nil
}

func (s *fakeStore) PutFingerprint(_ context.Context, record *FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.records[record.TaskID] = record
	return nil
}

func (s *fakeStore) DeleteFingerprint(_ context.Context, id TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// fakeRunner executes actions in-process, counting invocations per command.
type fakeRunner struct {
	mu          sync.Mutex
	invocations map[string]int
	onRun       func(ctx context.Context, spec ActionSpec) (*ActionResult, error)
}

func newFakeRunner(onRun func(ctx context.Context, spec ActionSpec) (*ActionResult, error)) *fakeRunner {
	return &fakeRunner{
		invocations: make(map[string]int),
		onRun:       onRun,
	}
}

func (r *fakeRunner) Run(ctx context.Context, spec ActionSpec) (*ActionResult, error) {
	r.mu.Lock()
	r.invocations[spec.Command]++
	r.mu.Unlock()
	if r.onRun != nil {
		return r.onRun(ctx, spec)
	}
	return &ActionResult{ExitCode: 0}, nil
}

func (r *fakeRunner) count(command string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invocations[command]
}

func (r *fakeRunner) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.invocations {
		n += c
	}
	return n
}
