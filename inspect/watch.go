package inspect

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of writes to one file into one refresh.
const watchDebounce = 200 * time.Millisecond

// Watch re-inspects a database whenever its file is written or replaced.
// It blocks until ctx is done.
func (i *Inspector) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Editors and sqlite3 tools often replace files, so watch directories.
	byPath := make(map[string]string, len(i.paths))
	dirs := make(map[string]bool)
	for name, path := range i.paths {
		byPath[path] = name
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			i.logger.Error("failed to watch directory", "dir", dir, "error", err)
		}
	}

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, tracked := byPath[filepath.Clean(event.Name)]
			if !tracked {
				continue
			}

			mu.Lock()
			if t, pending := timers[name]; pending {
				t.Stop()
			}
			timers[name] = time.AfterFunc(watchDebounce, func() {
				i.logger.Info("database changed, re-inspecting", "database", name)
				if _, err := i.Refresh(ctx, name); err != nil {
					i.logger.Error("refresh failed", "database", name, "error", err)
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Error("watcher error", "error", err)
		}
	}
}
