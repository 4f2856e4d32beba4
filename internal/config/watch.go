package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Config from a YAML file whenever it changes on disk,
// adapted from engine/internal/runtime.HotReloadSystem: watch the file's
// directory (not the file itself — editors replace-by-rename, which
// fsnotify can lose track of on a direct file watch), filter events down
// to the exact path, and only act on writes that actually changed the
// content.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu       sync.Mutex
	watching bool
	last     string // checksum of the most recently applied content

	onChange func(Config)
}

// NewWatcher opens an fsnotify watch on path's parent directory. The
// returned Watcher does nothing until Watch is called.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, fsw: fsw, onChange: onChange}
	if _, raw, err := loadWithRaw(path); err == nil {
		w.last = checksum(raw)
	}
	return w, nil
}

// Watch blocks, reloading on every write or create event for path and
// invoking onChange when the content differs from the last applied
// version, until ctx is cancelled or Stop is called. Load errors (a momentarily
// invalid file mid-save) are swallowed — the previous Config stays active
// until a subsequent write parses cleanly, matching the teacher's
// tolerate-one-bad-write hot-reload behavior.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.watching = true
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&fsnotify.Write == 0 && event.Op&fsnotify.Create == 0 {
				continue
			}
			w.reload()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, raw, err := loadWithRaw(w.path)
	if err != nil {
		return
	}
	sum := checksum(raw)

	w.mu.Lock()
	changed := sum != w.last
	w.last = sum
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(cfg)
	}
}

// Stop closes the underlying fsnotify watch. Safe to call once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return nil
	}
	w.watching = false
	return w.fsw.Close()
}
