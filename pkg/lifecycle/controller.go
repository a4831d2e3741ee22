// Package lifecycle orchestrates server and client state changes. Every
// operation on a given server id runs under that server's store lock, so
// lifecycle operations per id are totally ordered; different ids proceed
// concurrently. The persisted model is the single source of truth: on-disk
// configs and live peer state are always derived from it, never read back.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"awgman/pkg/awg"
	"awgman/pkg/driftwatch"
	"awgman/pkg/firewall"
	"awgman/pkg/logging"
	"awgman/pkg/metrics"
	"awgman/pkg/model"
	"awgman/pkg/render"
	"awgman/pkg/store"
	"awgman/pkg/traffic"

	"github.com/sirupsen/logrus"
)

// Options carries the environment defaults applied to new servers and the
// paths the controller writes under.
type Options struct {
	// ConfigDir is where rendered server configs live, one file per server.
	ConfigDir string

	// PublicIP is the address written into client Endpoint lines.
	PublicIP string

	DefaultPort   int
	DefaultSubnet string
	DefaultMTU    int
	DefaultDNS    []string

	DefaultEnableNAT     bool
	DefaultBlockLANCIDRs bool
	DefaultAutoStart     bool
}

// Controller wires the store, the external tunnel backend and the network
// isolation collaborator together.
type Controller struct {
	opts      Options
	store     *store.Store
	backend   awg.Backend
	isolator  firewall.Isolator
	collector *traffic.Collector
	metrics   *metrics.Metrics
	drift     *driftwatch.Watcher
}

// New creates a controller. metrics and drift may be nil.
func New(opts Options, st *store.Store, backend awg.Backend, isolator firewall.Isolator, m *metrics.Metrics, drift *driftwatch.Watcher) *Controller {
	return &Controller{
		opts:      opts,
		store:     st,
		backend:   backend,
		isolator:  isolator,
		collector: traffic.NewCollector(backend),
		metrics:   m,
		drift:     drift,
	}
}

// Store exposes the underlying store for read-side consumers (status
// endpoints, monitors).
func (c *Controller) Store() *store.Store { return c.store }

// Collector exposes the traffic collector with the controller's backend.
func (c *Controller) Collector() *traffic.Collector { return c.collector }

func (c *Controller) log(serverID string) *logrus.Entry {
	return logging.WithFields(logrus.Fields{"component": "lifecycle", "server": serverID})
}

// findServer returns the server pointer or a NotFoundError. The pointer
// stays valid while the caller holds the server's lock; slice growth in the
// model never moves the records it points at.
func (c *Controller) findServer(id string) (*model.Server, error) {
	var srv *model.Server
	c.store.View(func(m *model.Model) {
		srv = m.Server(id)
	})
	if srv == nil {
		return nil, &NotFoundError{Kind: "server", ID: id}
	}
	return srv, nil
}

// newID generates a short opaque identifier, generated once and immutable.
func newID() string {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// writeServerConfig renders the server's on-disk config and replaces the
// file atomically. The file is a derived artifact: it is only ever written
// from the model, under the server's lock.
func (c *Controller) writeServerConfig(s *model.Server) error {
	text := render.ServerConfig(s, true)
	if c.drift != nil {
		c.drift.MarkOwnWrite(s.ConfigPath)
	}
	dir := filepath.Dir(s.ConfigPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+s.Interface+"-*.tmp")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if c.drift != nil {
		c.drift.MarkOwnWrite(tmpName)
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpName, s.ConfigPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// serverAddrs parses the subnet and currently-taken client addresses.
func serverAddrs(s *model.Server) (netip.Prefix, netip.Addr, []netip.Addr, error) {
	subnet, err := netip.ParsePrefix(s.Subnet)
	if err != nil {
		return netip.Prefix{}, netip.Addr{}, nil, fmt.Errorf("parsing subnet %q: %w", s.Subnet, err)
	}
	serverIP, err := netip.ParseAddr(s.ServerIP)
	if err != nil {
		return netip.Prefix{}, netip.Addr{}, nil, fmt.Errorf("parsing server ip %q: %w", s.ServerIP, err)
	}
	taken := make([]netip.Addr, 0, len(s.Clients))
	for _, cl := range s.Clients {
		if a, err := netip.ParseAddr(cl.ClientIP); err == nil {
			taken = append(taken, a)
		}
	}
	return subnet, serverIP, taken, nil
}

// RunningCount returns how many servers currently have a live interface and
// updates the running-servers gauge.
func (c *Controller) RunningCount(ctx context.Context) int {
	n := 0
	c.store.View(func(m *model.Model) {
		for _, s := range m.Servers {
			if c.backend.InterfaceExists(ctx, s.Interface) {
				n++
			}
		}
	})
	if c.metrics != nil {
		c.metrics.ServersRunning.Set(float64(n))
	}
	return n
}
