package engine

import (
	"fmt"
	"sync"
	"time"
)

// ArtifactRegistry holds the artifacts published during one invocation.
// Name-to-producer binding is fixed at graph-build time (see Graph); the
// registry records the runtime publish events and serves consumer lookups.
// It is safe for concurrent use: publishes are serialized per record and
// readers see either no record or a fully-published one.
type ArtifactRegistry struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// NewArtifactRegistry creates an empty artifact registry.
func NewArtifactRegistry() *ArtifactRegistry {
	return &ArtifactRegistry{
		artifacts: make(map[string]*Artifact),
	}
}

// Publish records an artifact after its producing task succeeded or was
// confirmed up-to-date. Republishing under the same name by the same task
// replaces the record; a different producer is a configuration error.
func (r *ArtifactRegistry) Publish(producer TaskID, decl ArtifactDecl, path, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.artifacts[decl.Name]; ok && prev.Producer != producer {
		return NewConfigurationError(
			fmt.Sprintf("artifact %s already published by task %s", decl.Name, prev.Producer), nil).
			WithCode(ErrCodeDuplicateArtifact).WithTask(producer)
	}

	r.artifacts[decl.Name] = &Artifact{
		Name:        decl.Name,
		Type:        decl.Type,
		Producer:    producer,
		Path:        path,
		Version:     version,
		PublishedAt: time.Now(),
	}
	return nil
}

// Resolve returns the current record for a published artifact. It fails if
// the name was never published in this invocation.
func (r *ArtifactRegistry) Resolve(name string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.artifacts[name]
	if !ok {
		return nil, NewConfigurationError(
			fmt.Sprintf("artifact %s has not been published", name), nil).
			WithCode(ErrCodeUnresolvedArtifact)
	}
	return a, nil
}

// List returns all artifacts published in this invocation.
func (r *ArtifactRegistry) List() []*Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a)
	}
	return out
}
