// Package watch triggers rebuilds when declared inputs change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before firing, coalescing editor save bursts into one trigger.
const DefaultDebounce = 300 * time.Millisecond

// Watcher observes the file and directory inputs of a task set and invokes
// a callback after changes settle.
type Watcher struct {
	paths    []string
	debounce time.Duration
	onChange func(changed []string)
}

// New creates a watcher over the declared file and directory inputs of the
// given tasks. Literal inputs have no filesystem presence and are ignored.
func New(graph *engine.Graph, ids []engine.TaskID, onChange func(changed []string)) *Watcher {
	seen := make(map[string]bool)
	paths := make([]string, 0)
	for _, id := range ids {
		task, ok := graph.Task(id)
		if !ok {
			continue
		}
		for _, in := range task.Inputs {
			if in.Kind == engine.InputLiteral || seen[in.Path] {
				continue
			}
			seen[in.Path] = true
			paths = append(paths, in.Path)
		}
	}

	return &Watcher{
		paths:    paths,
		debounce: DefaultDebounce,
		onChange: onChange,
	}
}

// SetDebounce overrides the settle interval.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until the context is cancelled. Directory inputs are watched
// recursively; directories created while watching are added on the fly.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, path := range w.paths {
		if err := addRecursive(fsw, path); err != nil {
			return err
		}
	}

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		changed = make(map[string]bool)
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			changed[event.Name] = true
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(fsw, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return err

		case <-timerC:
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			changed = make(map[string]bool)
			timer = nil
			timerC = nil
			w.onChange(paths)
		}
	}
}

// addRecursive watches a path and, for directories, every subdirectory.
func addRecursive(fsw *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		// Inputs may not exist yet; the producing task creates them.
		return nil
	}
	if !info.IsDir() {
		return fsw.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
}
