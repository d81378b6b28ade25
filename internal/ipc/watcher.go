package ipc

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
)

// pollSafetyNet is the coarse poll interval backing every directory
// watcher: native filesystem events need a safety net against missed
// events on path creation.
const pollSafetyNet = 500 * time.Millisecond

// FileHandler processes one newly observed, fully-written file. name is the
// base filename (never a ".tmp" artifact).
type FileHandler func(ctx context.Context, name string, data []byte) error

// WatchDir watches dir for new files and invokes handler for each one in
// filename order, exactly once. It combines an fsnotify watch with a coarse
// poll fallback: fsnotify gives low-latency delivery, the poll guards
// against watches established after files were already created, and
// against platforms where the create event races the watch registration.
//
// WatchDir blocks until ctx is cancelled. dir is created if it does not
// exist.
func WatchDir(ctx context.Context, dir string, handler FileHandler) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// fsnotify is unavailable (e.g. inotify instance limit hit); the
		// poll loop alone still gives correct, if less prompt, delivery.
		slog.Warn("ipc.watch.fsnotify_unavailable", "dir", dir, "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			slog.Warn("ipc.watch.add_failed", "dir", dir, "error", err)
		}
	}

	seen := make(map[string]bool)
	sweep := func() {
		names, err := sortedNewFiles(dir)
		if err != nil {
			slog.Warn("ipc.watch.readdir_failed", "dir", dir, "error", err)
			return
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				// Transient: file can vanish between readdir and read if a
				// handler elsewhere already consumed (unlinked) it.
				continue
			}
			if err := handler(ctx, name, data); err != nil {
				slog.Warn("ipc.watch.handler_failed", "dir", dir, "file", name, "error", err)
			}
		}
	}

	ticker := time.NewTicker(pollSafetyNet)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweep()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sweep()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("ipc.watch.fsnotify_error", "dir", dir, "error", err)
		}
	}
}

// sortedNewFiles returns the non-temp filenames in dir, lexicographically
// sorted — which equals creation order for the "<ms>-<hex>.json" naming
// scheme used throughout the fabric.
func sortedNewFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if fsatomic.IsTempName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
