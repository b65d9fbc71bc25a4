package manifest

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader parses and validates workspace manifests.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a manifest loader.
func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(),
	}
}

// Load reads, parses, and validates a manifest file. Unknown fields are
// rejected so typos in declarations fail loudly instead of being silently
// dropped.
func (l *Loader) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse parses and validates manifest content.
func (l *Loader) Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	m := &Manifest{}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := l.validator.Struct(m); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	if err := l.checkSemantics(m); err != nil {
		return nil, err
	}

	return m, nil
}

// checkSemantics enforces constraints the struct tags cannot express:
// name uniqueness within a scope and literal inputs carrying a value.
func (l *Loader) checkSemantics(m *Manifest) error {
	projects := make(map[string]bool)
	for _, p := range m.Projects {
		if projects[p.Name] {
			return fmt.Errorf("duplicate project name: %s", p.Name)
		}
		projects[p.Name] = true

		tasks := make(map[string]bool)
		for _, t := range p.Tasks {
			if tasks[t.Name] {
				return fmt.Errorf("duplicate task name %s in project %s", t.Name, p.Name)
			}
			tasks[t.Name] = true

			inputs := make(map[string]bool)
			for _, in := range t.Inputs {
				if inputs[in.Name] {
					return fmt.Errorf("duplicate input %s in task %s:%s", in.Name, p.Name, t.Name)
				}
				inputs[in.Name] = true
				if in.Kind == "literal" && in.Value == "" {
					return fmt.Errorf("literal input %s in task %s:%s has no value", in.Name, p.Name, t.Name)
				}
			}

			outputs := make(map[string]bool)
			for _, out := range t.Outputs {
				if outputs[out.Name] {
					return fmt.Errorf("duplicate output %s in task %s:%s", out.Name, p.Name, t.Name)
				}
				outputs[out.Name] = true
			}
		}
	}
	return nil
}
