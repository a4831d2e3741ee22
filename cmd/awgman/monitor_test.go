package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awgman/pkg/awg"
	"awgman/pkg/firewall"
	"awgman/pkg/lifecycle"
	"awgman/pkg/store"
)

func newMonitorFixture(t *testing.T) (*lifecycle.Controller, *store.Store, *awg.MockBackend) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "web_config.json"))
	require.NoError(t, st.Load(context.Background(), nil))

	backend := awg.NewMockBackend()
	ctrl := lifecycle.New(lifecycle.Options{
		ConfigDir:     filepath.Join(dir, "amneziawg"),
		PublicIP:      "203.0.113.7",
		DefaultPort:   51820,
		DefaultSubnet: "10.0.0.0/24",
		DefaultMTU:    1280,
		DefaultDNS:    []string{"8.8.8.8"},
	}, st, backend, firewall.NewMockIsolator(), nil, nil)
	return ctrl, st, backend
}

func TestPollServerDerivesClientStatus(t *testing.T) {
	ctx := context.Background()
	ctrl, st, backend := newMonitorFixture(t)

	srv, _, err := ctrl.CreateServer(ctx, lifecycle.CreateServerRequest{Name: "test"})
	require.NoError(t, err)
	client, _, err := ctrl.AddClient(ctx, srv.ID, lifecycle.AddClientRequest{Name: "laptop"})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(ctx, srv.ID))

	backend.ShowOutput = "peer: " + client.PublicKey + "\n  latest handshake: 10 seconds ago\n  transfer: 1.00 KiB received, 1.00 KiB sent\n"
	assert.True(t, pollServer(ctx, ctrl, st, srv.ID), "first poll flips the status")
	assert.Equal(t, "active", client.Status)

	// Unchanged state reports no change.
	assert.False(t, pollServer(ctx, ctrl, st, srv.ID))

	// A stale handshake flips the client back.
	backend.ShowOutput = "peer: " + client.PublicKey + "\n  latest handshake: 20 minutes ago\n"
	assert.True(t, pollServer(ctx, ctrl, st, srv.ID))
	assert.Equal(t, "inactive", client.Status)
}

func TestPollServerStoppedServer(t *testing.T) {
	ctx := context.Background()
	ctrl, st, _ := newMonitorFixture(t)

	srv, _, err := ctrl.CreateServer(ctx, lifecycle.CreateServerRequest{Name: "test"})
	require.NoError(t, err)
	client, _, err := ctrl.AddClient(ctx, srv.ID, lifecycle.AddClientRequest{Name: "laptop"})
	require.NoError(t, err)

	// No interface: every client reads inactive, and the first poll is a
	// no-op because that is already the stored state.
	assert.False(t, pollServer(ctx, ctrl, st, srv.ID))
	assert.Equal(t, "inactive", client.Status)
}

func TestPollServerUnknownID(t *testing.T) {
	ctrl, st, _ := newMonitorFixture(t)
	assert.False(t, pollServer(context.Background(), ctrl, st, "nope"))
}
