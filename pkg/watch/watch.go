// Package watch wraps fsnotify to deliver worker.Event notifications to
// the channel workers whose sources match a changed path.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/shiplog/shiplog/pkg/worker"
)

// Route matches a path to the worker that should receive its events.
type Route struct {
	Match  func(path string) bool
	Submit func(ev worker.Event) bool
}

// Watcher wraps an fsnotify.Watcher, watching the parent directories of
// every registered route's sources (fsnotify watches directories, which is
// how file creation is observed) and dispatching translated events to the
// first matching route.
type Watcher struct {
	fsw    *fsnotify.Watcher
	routes []Route
	logger *slog.Logger
}

// New creates a Watcher and begins watching dirs.
func New(dirs []string, routes []Route, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, d := range dirs {
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		if err := fsw.Add(d); err != nil {
			logger.Warn("watch: cannot watch directory", "dir", d, "err", err)
		}
	}
	return &Watcher{fsw: fsw, routes: routes, logger: logger}, nil
}

// AddRoute registers an additional route after construction (e.g. a
// channel started after the watcher).
func (w *Watcher) AddRoute(r Route) {
	w.routes = append(w.routes, r)
}

// Run drains fsnotify events until ctx is cancelled, translating and
// dispatching each one.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.dispatch(translate(ev))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) dispatch(ev worker.Event) {
	for _, r := range w.routes {
		if r.Match(ev.Path) {
			r.Submit(ev)
			return
		}
	}
}

func translate(ev fsnotify.Event) worker.Event {
	var flags worker.Flags
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		flags = worker.Delete
	case ev.Op&fsnotify.Create != 0:
		flags = worker.Create
	case ev.Op&fsnotify.Write != 0:
		flags = worker.Modify
	}
	return worker.Event{Path: ev.Name, Flags: flags}
}

// WatchDirs derives the set of parent directories to watch from a list of
// glob patterns, the same way a shell glob's non-wildcard prefix names the
// directory to scan.
func WatchDirs(globs []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, g := range globs {
		dir := filepath.Dir(g)
		for containsMeta(dir) {
			dir = filepath.Dir(dir)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func containsMeta(path string) bool {
	for _, r := range path {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}
