// Package watch turns bursts of filesystem changes into debounced batches.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Config configures a Watcher.
type Config struct {
	Root     string
	Debounce time.Duration
	// Exclude holds doublestar patterns matched against slash-separated
	// paths relative to Root.
	Exclude []string
	// Settle is how long events keep being ignored after Resume, so writes
	// that were still in flight when a run finished are not replayed.
	Settle time.Duration
	Logger *slog.Logger
}

// Batch is the set of paths that changed during one quiet period.
type Batch struct {
	Paths []string
}

// Watcher watches Root recursively.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu   sync.Mutex
	pending     map[string]struct{}
	paused      bool
	ignoreUntil time.Time

	batches chan Batch
}

// New creates a watcher. Call Start to begin receiving batches.
func New(config Config) (*Watcher, error) {
	if err := validPatterns(config.Exclude); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if config.Settle <= 0 {
		config.Settle = 250 * time.Millisecond
	}
	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  config.Logger,
		pending: map[string]struct{}{},
		batches: make(chan Batch, 8),
	}, nil
}

// Batches delivers debounced change sets. It is closed when the watcher stops.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Close releases the underlying fsnotify watcher. It is safe to call after
// the watcher has stopped on its own.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Pause drops every change until Resume is called. Callers pause while they
// act on a batch so files written by that work do not start another one.
func (w *Watcher) Pause() {
	w.pendingMu.Lock()
	w.paused = true
	w.pendingMu.Unlock()
}

// Resume starts recording changes again once the settle period has passed.
func (w *Watcher) Resume() {
	w.pendingMu.Lock()
	w.paused = false
	w.ignoreUntil = time.Now().Add(w.config.Settle)
	w.pendingMu.Unlock()
}

// Start adds watches and processes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.config.Root); err != nil {
		return err
	}
	go w.loop(ctx)
	w.logger.Info("file watcher started", "root", w.config.Root, "debounce", w.config.Debounce)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.batches)
	defer w.watcher.Close()

	timer := time.NewTimer(w.config.Debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handle(event) {
				timer.Reset(w.config.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// handle records event and reports whether it counts as a change.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.config.Root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if w.excluded(rel) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return false
		}
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.paused || time.Now().Before(w.ignoreUntil) {
		w.logger.Debug("change ignored while paused", "path", rel)
		return false
	}
	w.pending[rel] = struct{}{}
	w.logger.Debug("file change detected", "path", rel, "op", event.Op.String())
	return true
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.pendingMu.Unlock()

	sort.Strings(paths)
	select {
	case w.batches <- Batch{Paths: paths}:
	case <-ctx.Done():
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.config.Root, path)
		if relErr == nil && rel != "." {
			rel = filepath.ToSlash(rel)
			if d.Name() == ".git" || w.excluded(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) excluded(rel string) bool {
	for _, p := range w.config.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func validPatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return &PatternError{Pattern: p}
		}
	}
	return nil
}

// PatternError reports a malformed exclude pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid watch exclude pattern " + e.Pattern
}
