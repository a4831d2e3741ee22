package awg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIfaceFromConfigPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/etc/amnezia/amneziawg/wg-a1b2c3.conf", "wg-a1b2c3"},
		{"wg-a1b2c3.conf", "wg-a1b2c3"},
		{"/tmp/nested/dir/wg-x.conf", "wg-x"},
		{"plainname", "plainname"},
	}
	for _, tt := range tests {
		if got := ifaceFromConfigPath(tt.path); got != tt.want {
			t.Errorf("ifaceFromConfigPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestToolErrorUnwrap(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &ToolError{Op: "bring-up", Output: "some output", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "bring-up")
}

func TestMockBackendLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockBackend()

	assert.False(t, m.InterfaceExists(ctx, "wg-x"))
	require.NoError(t, m.BringUp(ctx, "/etc/amnezia/amneziawg/wg-x.conf"))
	assert.True(t, m.InterfaceExists(ctx, "wg-x"))

	require.NoError(t, m.AddPeer(ctx, "wg-x", "PUB=", "10.0.0.2", "PSK="))
	assert.Contains(t, m.Peers("wg-x"), "PUB=")

	require.NoError(t, m.RemovePeer(ctx, "wg-x", "PUB="))
	assert.Empty(t, m.Peers("wg-x"))

	require.NoError(t, m.TearDown(ctx, "wg-x"))
	assert.False(t, m.InterfaceExists(ctx, "wg-x"))

	// Peer operations on a downed interface fail.
	assert.Error(t, m.AddPeer(ctx, "wg-x", "PUB=", "10.0.0.2", ""))
}

func TestMockBackendShowAbsent(t *testing.T) {
	m := NewMockBackend()
	out, err := m.Show(context.Background(), "wg-gone")
	require.NoError(t, err)
	assert.Empty(t, out)
}
