package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/decisioncentral/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// Watcher keeps the registry in step with the service files of a
// directory. Writing a file registers the service named after it and
// removing the file deletes the service.
type Watcher struct {
	dir      string
	registry *Registry
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// NewWatcher starts watching dir. Call Sync to load the files already
// present and Run to follow changes.
func NewWatcher(registry *Registry, dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, registry: registry, debounce: debounce, fs: fw}, nil
}

// Sync registers every service file currently in the directory.
func (w *Watcher) Sync() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.dir, err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatForFile(e.Name()); !ok {
			continue
		}
		if err := w.apply(filepath.Join(w.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run follows file events until ctx is done. Bursts of events on one file
// are collapsed into a single reload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	pending := make(map[string]*time.Timer)
	fire := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if _, supported := FormatForFile(ev.Name); !supported || ev.Op == fsnotify.Chmod {
				continue
			}
			if t, ok := pending[ev.Name]; ok {
				t.Reset(w.debounce)
				continue
			}
			path := ev.Name
			pending[path] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- path:
				case <-ctx.Done():
				}
			})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "dir", w.dir, "error", err)

		case path := <-fire:
			delete(pending, path)
			if err := w.apply(path); err != nil {
				logger.Warn("failed to reload decision service", "path", path, "error", err)
			}
		}
	}
}

// apply registers or deletes the service backed by path depending on
// whether the file still exists.
func (w *Watcher) apply(path string) error {
	name := NameFromFile(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := w.registry.Delete(name); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		logger.Info("decision service removed", "name", name, "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	format, _ := FormatForFile(path)
	entry, err := w.registry.Register(name, format, data)
	if err != nil {
		return err
	}
	logger.Info("decision service loaded", "name", entry.Name, "path", path, "id", entry.ID.String())
	return nil
}
