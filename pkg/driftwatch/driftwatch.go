// Package driftwatch watches the rendered-config directory for edits the
// controller did not make itself. Rendered configs are derived artifacts;
// anything else writing them is drift between the persisted model and the
// file the tunnel binary will read next, which breaks connectivity silently.
// The watcher cannot fix drift, only make it loud.
package driftwatch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"awgman/pkg/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// suppressWindow is how long after a controller write events on that file
// are attributed to the controller itself.
const suppressWindow = 2 * time.Second

// Watcher reports out-of-band modifications of files under a directory.
type Watcher struct {
	dir     string
	counter prometheus.Counter

	mu       sync.Mutex
	ownWrite map[string]time.Time
}

// New creates a watcher for dir. counter may be nil.
func New(dir string, counter prometheus.Counter) *Watcher {
	return &Watcher{
		dir:      dir,
		counter:  counter,
		ownWrite: make(map[string]time.Time),
	}
}

// MarkOwnWrite tells the watcher the controller is about to write path, so
// the resulting events are not reported as drift.
func (w *Watcher) MarkOwnWrite(path string) {
	w.mu.Lock()
	w.ownWrite[filepath.Clean(path)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) isOwnWrite(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ts, ok := w.ownWrite[filepath.Clean(path)]
	if !ok {
		return false
	}
	if time.Since(ts) > suppressWindow {
		delete(w.ownWrite, filepath.Clean(path))
		return false
	}
	return true
}

// Run watches until ctx is cancelled. Watch setup failures are logged and
// abort the watcher; drift detection is best-effort and never takes the
// control plane down.
func (w *Watcher) Run(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warnf("driftwatch: cannot create watcher: %v", err)
		return
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		logging.Warnf("driftwatch: cannot watch %s: %v", w.dir, err)
		return
	}
	logging.WithFields(logrus.Fields{"component": "driftwatch"}).Infof("watching %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".conf") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.isOwnWrite(ev.Name) {
				continue
			}
			logging.WithFields(logrus.Fields{
				"component": "driftwatch",
				"file":      ev.Name,
				"op":        ev.Op.String(),
			}).Warnf("rendered config modified outside the controller; on-disk state has drifted from the model")
			if w.counter != nil {
				w.counter.Inc()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Warnf("driftwatch: %v", err)
		}
	}
}
