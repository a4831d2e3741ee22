package awg

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is an in-memory Backend for testing. It tracks which
// interfaces are up and which peers each carries, and can be told to fail
// specific operations.
type MockBackend struct {
	mu sync.Mutex

	// up maps interface name -> set of peer public keys.
	up map[string]map[string]string

	// ShowOutput, when set, is returned verbatim by Show for present
	// interfaces.
	ShowOutput string

	// FailBringUp, FailTearDown, FailAddPeer, FailRemovePeer force the
	// corresponding operation to fail.
	FailBringUp    bool
	FailTearDown   bool
	FailAddPeer    bool
	FailRemovePeer bool

	// Calls records operation names in invocation order.
	Calls []string
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend returns an empty mock with no interfaces up.
func NewMockBackend() *MockBackend {
	return &MockBackend{up: make(map[string]map[string]string)}
}

func (m *MockBackend) record(op string) {
	m.Calls = append(m.Calls, op)
}

func (m *MockBackend) fail(op string) error {
	return &ToolError{Op: op, Output: "mock failure", Err: fmt.Errorf("forced failure")}
}

// SetUp marks an interface as present without going through BringUp.
func (m *MockBackend) SetUp(iface string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.up[iface] == nil {
		m.up[iface] = make(map[string]string)
	}
}

// Peers returns the peer public keys currently on the interface.
func (m *MockBackend) Peers(iface string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.up[iface] {
		out = append(out, k)
	}
	return out
}

func (m *MockBackend) BringUp(ctx context.Context, configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("bring-up")
	if m.FailBringUp {
		return m.fail("bring-up")
	}
	// awg-quick derives the interface name from the config file name.
	iface := ifaceFromConfigPath(configPath)
	if m.up[iface] == nil {
		m.up[iface] = make(map[string]string)
	}
	return nil
}

func (m *MockBackend) TearDown(ctx context.Context, iface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("tear-down")
	if m.FailTearDown {
		return m.fail("tear-down")
	}
	if _, ok := m.up[iface]; !ok {
		return m.fail("tear-down")
	}
	delete(m.up, iface)
	return nil
}

func (m *MockBackend) AddPeer(ctx context.Context, iface, publicKey, allowedIP, presharedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("add-peer")
	if m.FailAddPeer {
		return m.fail("add-peer")
	}
	peers, ok := m.up[iface]
	if !ok {
		return m.fail("add-peer")
	}
	peers[publicKey] = allowedIP
	return nil
}

func (m *MockBackend) RemovePeer(ctx context.Context, iface, publicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("remove-peer")
	if m.FailRemovePeer {
		return m.fail("remove-peer")
	}
	peers, ok := m.up[iface]
	if !ok {
		return m.fail("remove-peer")
	}
	delete(peers, publicKey)
	return nil
}

func (m *MockBackend) Show(ctx context.Context, iface string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("show")
	if _, ok := m.up[iface]; !ok {
		return "", nil
	}
	return m.ShowOutput, nil
}

func (m *MockBackend) InterfaceExists(ctx context.Context, iface string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.up[iface]
	return ok
}

// ifaceFromConfigPath strips the directory and .conf suffix, mirroring how
// awg-quick names the interface after the config file.
func ifaceFromConfigPath(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	if len(base) > 5 && base[len(base)-5:] == ".conf" {
		base = base[:len(base)-5]
	}
	return base
}
