package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awgman/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "web_config.json"))
}

func addServer(t *testing.T, s *Store, id, iface string, status model.ServerStatus) {
	t.Helper()
	err := s.Mutate(func(m *model.Model) error {
		m.Servers = append(m.Servers, &model.Server{
			ID:        id,
			Name:      "srv-" + id,
			Interface: iface,
			Status:    status,
		})
		return nil
	})
	require.NoError(t, err)
}

func TestLoadMissingDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load(context.Background(), nil))
	s.View(func(m *model.Model) {
		assert.Empty(t, m.Servers)
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	addServer(t, s, "abc123", "wg-abc123", model.StatusStopped)

	reloaded := New(s.Path())
	require.NoError(t, reloaded.Load(context.Background(), nil))
	reloaded.View(func(m *model.Model) {
		require.Len(t, m.Servers, 1)
		assert.Equal(t, "abc123", m.Servers[0].ID)
		assert.Equal(t, "srv-abc123", m.Servers[0].Name)
	})
}

func TestSaveFileMode(t *testing.T) {
	s := newTestStore(t)
	addServer(t, s, "abc123", "wg-abc123", model.StatusStopped)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestSaveLeavesNoTemp checks the write-temp-then-rename path cleans up
// after itself.
func TestSaveLeavesNoTemp(t *testing.T) {
	s := newTestStore(t)
	addServer(t, s, "abc123", "wg-abc123", model.StatusStopped)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestLoadCorruptDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	err := s.Load(context.Background(), nil)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "load", ioErr.Op)
}

// TestLoadReconcilesStatus persists a running hint whose interface is gone
// and a stopped hint whose interface is up, and expects both corrected.
func TestLoadReconcilesStatus(t *testing.T) {
	s := newTestStore(t)
	addServer(t, s, "dead01", "wg-dead01", model.StatusRunning)
	addServer(t, s, "live02", "wg-live02", model.StatusStopped)

	up := map[string]bool{"wg-live02": true}
	check := func(_ context.Context, iface string) bool { return up[iface] }

	reloaded := New(s.Path())
	require.NoError(t, reloaded.Load(context.Background(), check))
	reloaded.View(func(m *model.Model) {
		assert.Equal(t, model.StatusStopped, m.Servers[0].Status)
		assert.Equal(t, model.StatusRunning, m.Servers[1].Status)
	})
}

func TestMutateErrorSkipsSave(t *testing.T) {
	s := newTestStore(t)
	sentinel := errors.New("nope")
	err := s.Mutate(func(m *model.Model) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "failed mutation must not write the document")
}

// TestLockServerSerializes runs many lock/unlock cycles per id and checks
// the critical sections never overlap.
func TestLockServerSerializes(t *testing.T) {
	s := newTestStore(t)

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unlock := s.LockServer("same-id")
				inside++
				if inside != 1 {
					t.Error("two goroutines inside the same server lock")
				}
				inside--
				unlock()
			}
		}()
	}
	wg.Wait()
}

func TestLockServerIndependentIDs(t *testing.T) {
	s := newTestStore(t)

	unlockA := s.LockServer("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := s.LockServer("b")
		unlockB()
		close(done)
	}()
	<-done // must not deadlock while "a" is held
}
