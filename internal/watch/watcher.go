// Package watch re-runs the synchronization whenever the coverage
// artifact changes.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"aiunit/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a run.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context) error

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Runs          int
	Errors        int
	LastEventTime time.Time
	LastEventType string
}

// Watcher watches one coverage artifact. The directory holding it is
// watched so the artifact may be deleted and recreated between test runs.
// Runs happen on the event loop goroutine, so two never overlap; changes
// made while a run is in progress trigger one more run afterwards.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	target      string
	dir         string
	run         RunFunc
	debounceDur time.Duration
	pendingAt   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// New creates a watcher for artifact. A non-positive debounce uses
// DefaultDebounce.
func New(artifact string, run RunFunc, debounce time.Duration) (*Watcher, error) {
	if run == nil {
		return nil, errors.New("watch: run function is required")
	}
	abs, err := filepath.Abs(artifact)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		target:      abs,
		dir:         filepath.Dir(abs),
		run:         run,
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking; the event loop runs until
// ctx is cancelled or Stop is called. On error the underlying fsnotify
// watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		// The watcher cannot be restarted once Start fails.
		_ = w.watcher.Close()
		return err
	}
	logging.Watch("Watching %s", w.target)

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for an in-flight run to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watch error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.maybeRun(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.target {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A replaced artifact shows up again as a create.
		logging.WatchDebug("%s removed", w.target)
		return
	default:
		return
	}
	logging.WatchDebug("%s event for %s", eventType, event.Name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventType = eventType
	w.pendingAt = w.stats.LastEventTime
	w.mu.Unlock()
}

// maybeRun starts a run once the artifact has been quiet for the
// debounce window.
func (w *Watcher) maybeRun(ctx context.Context) {
	w.mu.Lock()
	if w.pendingAt.IsZero() || time.Since(w.pendingAt) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pendingAt = time.Time{}
	w.stats.Runs++
	w.mu.Unlock()

	logging.Watch("Coverage changed, running synchronization")
	if err := w.run(ctx); err != nil {
		logging.Get(logging.CategoryWatch).Error("run failed: %v", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
	}
}
