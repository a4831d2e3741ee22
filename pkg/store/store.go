// Package store owns the persisted model document. All reads and writes of
// the document go through it: saves are atomic (write-to-temp-then-rename
// under a cross-process file lock) so a crash mid-write can never leave a
// truncated model behind, and per-server mutexes serialize mutations so two
// concurrent API calls touching the same server cannot lose updates.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"awgman/pkg/logging"
	"awgman/pkg/model"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// IOError wraps a failure to read or write the persisted model. It is fatal
// for the triggering request but never corrupts existing on-disk state.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("model store %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// InterfaceChecker reports whether a tunnel interface is currently present.
// Load uses it to reconcile persisted status hints against reality.
type InterfaceChecker func(ctx context.Context, iface string) bool

// Store holds the in-memory model and its on-disk document.
type Store struct {
	path     string
	fileLock *flock.Flock

	mu    sync.RWMutex
	model *model.Model

	lockMu      sync.Mutex
	serverLocks map[string]*sync.Mutex
}

// New creates a store for the given document path. Call Load before use.
func New(path string) *Store {
	return &Store{
		path:        path,
		fileLock:    flock.New(path + ".lock"),
		model:       &model.Model{},
		serverLocks: make(map[string]*sync.Mutex),
	}
}

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// Load reads the persisted document and reconciles every server's status
// hint against the actually-detected interface state. A missing document is
// an empty model, not an error. Servers are never auto-started here; a
// running hint with no interface behind it is corrected to stopped.
func (s *Store) Load(ctx context.Context, check InterfaceChecker) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.model = &model.Model{}
			s.mu.Unlock()
			return nil
		}
		return &IOError{Op: "load", Err: err}
	}

	m := &model.Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return &IOError{Op: "load", Err: fmt.Errorf("parsing %s: %w", s.path, err)}
	}

	if check != nil {
		for _, srv := range m.Servers {
			actual := model.StatusStopped
			if check(ctx, srv.Interface) {
				actual = model.StatusRunning
			}
			if srv.Status != actual {
				logging.WithFields(logrus.Fields{
					"component": "store",
					"server":    srv.ID,
					"interface": srv.Interface,
				}).Warnf("reconciled status hint %q to %q", srv.Status, actual)
				srv.Status = actual
			}
		}
	}

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
	return nil
}

// View runs fn with read access to the model. fn must not retain or mutate
// anything it is handed.
func (s *Store) View(fn func(m *model.Model)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.model)
}

// Update runs fn with exclusive access to the model without persisting.
// Used for derived fields whose persistence is throttled separately.
func (s *Store) Update(fn func(m *model.Model)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.model)
}

// Mutate runs fn with exclusive access to the model and persists the result
// atomically. If fn errors, nothing is written and the in-memory model keeps
// whatever fn already changed; callers mutate only after all fallible
// decisions are made.
func (s *Store) Mutate(fn func(m *model.Model) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.model); err != nil {
		return err
	}
	return s.saveLocked()
}

// Save persists the current model atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.model, "", "  ")
	if err != nil {
		return &IOError{Op: "save", Err: err}
	}

	if err := s.fileLock.Lock(); err != nil {
		return &IOError{Op: "save", Err: fmt.Errorf("acquiring file lock: %w", err)}
	}
	defer s.fileLock.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".web_config-*.tmp")
	if err != nil {
		return &IOError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IOError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "save", Err: err}
	}
	// The document carries private keys.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &IOError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &IOError{Op: "save", Err: err}
	}
	return nil
}

// LockServer acquires the mutation lock for one server id and returns the
// release func. All lifecycle operations on a given id run under this lock;
// operations on different ids proceed concurrently.
func (s *Store) LockServer(id string) func() {
	s.lockMu.Lock()
	l, ok := s.serverLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.serverLocks[id] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}
