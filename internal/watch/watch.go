// Package watch debounces filesystem change events across a set of
// shader files and reports the changed paths once per debounce window,
// generalizing internal/config's single-file fsnotify watch to the
// many-file case the pass executor's hot reload needs (§2 component N).
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DebounceWindow is the batching interval spec §4.6 names explicitly:
// "debounces filesystem change events (100ms)".
const DebounceWindow = 100 * time.Millisecond

// Watcher batches fsnotify write/create events across however many
// directories it is told to watch and delivers the set of changed paths
// to a callback at most once per DebounceWindow.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *logrus.Entry

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	onChange func(changed map[string]bool)
}

// New creates a Watcher that calls onChange with the set of changed
// absolute paths after each debounce window. onChange runs on the
// debounce timer's goroutine (time.AfterFunc), not on Run's; callers that
// touch shared state from it must synchronize themselves.
func New(log *logrus.Logger, onChange func(changed map[string]bool)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		fsw:      fsw,
		log:      log.WithField("system", "watch"),
		pending:  make(map[string]bool),
		onChange: onChange,
	}, nil
}

// AddDir registers a directory (non-recursively, matching fsnotify's own
// scope) to be watched for shader file changes.
func (w *Watcher) AddDir(dir string) error {
	return w.fsw.Add(dir)
}

// Run processes fsnotify events until ctx is canceled. Intended to be
// run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevantOp(ev.Op) {
				continue
			}
			w.queue(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch: fsnotify error")
		}
	}
}

func relevantOp(op fsnotify.Op) bool {
	return op&(fsnotify.Write|fsnotify.Create) != 0
}

// queue adds path to the pending set and (re)arms the debounce timer.
func (w *Watcher) queue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(DebounceWindow, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changed := w.pending
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	if w.onChange != nil {
		w.onChange(changed)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
