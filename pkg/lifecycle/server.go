package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"awgman/pkg/identity"
	"awgman/pkg/model"
	"awgman/pkg/obfuscation"
	"awgman/pkg/render"
)

// CreateServerRequest carries the caller-supplied server parameters. Zero
// values fall back to the controller's configured defaults.
type CreateServerRequest struct {
	Name   string
	Port   int
	Subnet string
	MTU    int
	DNS    []string

	// Obfuscation, when nil with obfuscation enabled, is generated randomly.
	// When supplied it is validated and rejected on any violation.
	Obfuscation *model.ObfuscationParams

	ObfuscationEnabled *bool
	AutoStart          *bool
	EnableNAT          *bool
	BlockLANCIDRs      *bool
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// CreateServer validates the request, generates key material and obfuscation
// parameters, writes the rendered config and persists the new record.
// Port collisions with existing servers are returned as warnings, not
// errors; the caller decides whether to proceed differently.
func (c *Controller) CreateServer(ctx context.Context, req CreateServerRequest) (srv *model.Server, warnings []string, err error) {
	defer func() { c.metrics.Observe("create_server", err) }()

	name := req.Name
	if name == "" {
		name = "New Server"
	}
	port := req.Port
	if port == 0 {
		port = c.opts.DefaultPort
	}
	subnet := req.Subnet
	if subnet == "" {
		subnet = c.opts.DefaultSubnet
	}
	mtu := req.MTU
	if mtu == 0 {
		mtu = c.opts.DefaultMTU
	}
	dns := req.DNS
	if len(dns) == 0 {
		dns = c.opts.DefaultDNS
	}

	var violations []obfuscation.Violation
	if port < 1 || port > 65535 {
		violations = append(violations, violation("port", "must be in [1, 65535], got %d", port))
	}
	if mtu < obfuscation.MinMTU || mtu > obfuscation.MaxMTU {
		violations = append(violations, violation("mtu", "must be in [%d, %d], got %d", obfuscation.MinMTU, obfuscation.MaxMTU, mtu))
	}
	prefix, perr := netip.ParsePrefix(subnet)
	if perr != nil || !prefix.Addr().Is4() {
		violations = append(violations, violation("subnet", "must be an IPv4 CIDR, got %q", subnet))
	} else if prefix.Bits() < 8 || prefix.Bits() > 30 {
		violations = append(violations, violation("subnet", "prefix length must be in [8, 30], got /%d", prefix.Bits()))
	}
	for _, d := range dns {
		if a, aerr := netip.ParseAddr(d); aerr != nil || !a.Is4() {
			violations = append(violations, violation("dns", "invalid resolver address %q", d))
		}
	}

	obfEnabled := boolOr(req.ObfuscationEnabled, true)
	params := req.Obfuscation
	if obfEnabled {
		if params != nil {
			violations = append(violations, obfuscation.Validate(params, mtu)...)
		} else {
			params = obfuscation.Generate(mtu)
		}
	} else {
		params = nil
	}
	if len(violations) > 0 {
		return nil, nil, &ValidationError{Violations: violations}
	}
	if params != nil {
		params = params.Clone()
		params.MTU = mtu
		for i := 1; i <= 5; i++ {
			params.SetIValue(i, params.IValues()[i-1])
		}
	}

	// Port reuse is allowed but suspicious; two servers cannot listen on the
	// same port at the same time.
	c.store.View(func(m *model.Model) {
		for _, other := range m.Servers {
			if other.Port == port {
				warnings = append(warnings, fmt.Sprintf("port %d already used by server %q", port, other.ID))
			}
			if other.Subnet == subnet {
				warnings = append(warnings, fmt.Sprintf("subnet %s already used by server %q", subnet, other.ID))
			}
		}
	})

	keys, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	serverIP, err := identity.ServerAddress(prefix)
	if err != nil {
		return nil, nil, err
	}

	id := newID()
	iface := "wg-" + id
	srv = &model.Server{
		ID:                 id,
		Name:               model.SanitizeValue(name),
		Port:               port,
		Status:             model.StatusStopped,
		Interface:          iface,
		ConfigPath:         fmt.Sprintf("%s/%s.conf", c.opts.ConfigDir, iface),
		PublicKey:          keys.PublicKey,
		PrivateKey:         keys.PrivateKey,
		Subnet:             subnet,
		ServerIP:           serverIP.String(),
		MTU:                mtu,
		PublicIP:           c.opts.PublicIP,
		DNS:                dns,
		ObfuscationEnabled: obfEnabled,
		Obfuscation:        params,
		AutoStart:          boolOr(req.AutoStart, c.opts.DefaultAutoStart),
		EnableNAT:          boolOr(req.EnableNAT, c.opts.DefaultEnableNAT),
		BlockLANCIDRs:      boolOr(req.BlockLANCIDRs, c.opts.DefaultBlockLANCIDRs),
		CreatedAt:          time.Now().Unix(),
		Clients:            []*model.Client{},
	}

	if err := c.writeServerConfig(srv); err != nil {
		return nil, nil, err
	}
	if err := c.store.Mutate(func(m *model.Model) error {
		m.Servers = append(m.Servers, srv)
		return nil
	}); err != nil {
		// The append survived the failed save; pop it again so no later
		// Save can persist a record whose creation was reported failed.
		c.store.Update(func(m *model.Model) {
			for i, s := range m.Servers {
				if s.ID == id {
					m.Servers = append(m.Servers[:i], m.Servers[i+1:]...)
					break
				}
			}
		})
		os.Remove(srv.ConfigPath)
		return nil, nil, err
	}

	c.log(id).Infof("server %q created (subnet %s, port %d)", srv.Name, subnet, port)
	return srv, warnings, nil
}

// Start brings a server's interface up and applies isolation rules. Failure
// at any step rolls back: no isolation rules without a live interface, and a
// live interface is torn down again when isolation setup fails. The server
// is never left half-started.
func (c *Controller) Start(ctx context.Context, id string) (err error) {
	defer func() { c.metrics.Observe("start", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}
	if c.backend.InterfaceExists(ctx, srv.Interface) {
		c.log(id).Debugf("interface %s already up", srv.Interface)
		return c.setStatus(srv, model.StatusRunning)
	}

	// The config file is regenerated from the model on every start; whatever
	// was on disk is stale by definition.
	if err := c.writeServerConfig(srv); err != nil {
		return err
	}

	if err := c.backend.BringUp(ctx, srv.ConfigPath); err != nil {
		return fmt.Errorf("starting %s: %w", srv.Interface, err)
	}
	if err := c.isolator.Apply(ctx, srv.Interface, srv.Subnet, srv.EnableNAT, srv.BlockLANCIDRs); err != nil {
		c.log(id).Errorf("isolation setup failed, rolling back interface: %v", err)
		if terr := c.backend.TearDown(ctx, srv.Interface); terr != nil {
			c.log(id).Errorf("rollback tear-down also failed: %v", terr)
		}
		if serr := c.setStatus(srv, model.StatusStopped); serr != nil {
			c.log(id).Errorf("persisting stopped status failed: %v", serr)
		}
		return fmt.Errorf("starting %s: %w", srv.Interface, err)
	}

	if err := c.setStatus(srv, model.StatusRunning); err != nil {
		return err
	}
	c.log(id).Infof("server %q started on %s", srv.Name, srv.Interface)
	return nil
}

// Stop tears down isolation rules and the interface. Teardown steps are
// idempotent cleanup: individual failures are logged, never propagated, and
// the server always ends up stopped.
func (c *Controller) Stop(ctx context.Context, id string) (err error) {
	defer func() { c.metrics.Observe("stop", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}

	if terr := c.isolator.Teardown(ctx, srv.Interface, srv.Subnet); terr != nil {
		c.log(id).Warnf("isolation teardown: %v", terr)
	}
	if c.backend.InterfaceExists(ctx, srv.Interface) {
		if terr := c.backend.TearDown(ctx, srv.Interface); terr != nil {
			c.log(id).Warnf("interface tear-down: %v", terr)
		}
	}
	if err := c.setStatus(srv, model.StatusStopped); err != nil {
		return err
	}
	c.log(id).Infof("server %q stopped", srv.Name)
	return nil
}

// DeleteServer tears a server down, removes its rendered config and drops
// the record with all its clients. The whole sequence runs under the server
// lock; a concurrent Start cannot slip in between teardown and delete and
// leave a live interface behind with no record. Teardown steps follow Stop's
// idempotent-cleanup policy: failures are logged, never propagated.
func (c *Controller) DeleteServer(ctx context.Context, id string) (err error) {
	defer func() { c.metrics.Observe("delete_server", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}

	if terr := c.isolator.Teardown(ctx, srv.Interface, srv.Subnet); terr != nil {
		c.log(id).Warnf("isolation teardown: %v", terr)
	}
	if c.backend.InterfaceExists(ctx, srv.Interface) {
		if terr := c.backend.TearDown(ctx, srv.Interface); terr != nil {
			c.log(id).Warnf("interface tear-down: %v", terr)
		}
	}
	if rerr := os.Remove(srv.ConfigPath); rerr != nil && !os.IsNotExist(rerr) {
		c.log(id).Warnf("removing config file: %v", rerr)
	}
	if err := c.store.Mutate(func(m *model.Model) error {
		for i, s := range m.Servers {
			if s.ID == id {
				m.Servers = append(m.Servers[:i], m.Servers[i+1:]...)
				break
			}
		}
		return nil
	}); err != nil {
		return err
	}
	c.log(id).Infof("server %q deleted", srv.Name)
	return nil
}

// UpdateNetworking persists new NAT / LAN-block flags and, when the server
// is running, re-applies isolation. Previous rules are removed first so
// repeated applications never stack duplicates.
func (c *Controller) UpdateNetworking(ctx context.Context, id string, enableNAT, blockLANCIDRs bool) (err error) {
	defer func() { c.metrics.Observe("update_networking", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}
	if err := c.store.Mutate(func(m *model.Model) error {
		srv.EnableNAT = enableNAT
		srv.BlockLANCIDRs = blockLANCIDRs
		return nil
	}); err != nil {
		return err
	}

	if !c.backend.InterfaceExists(ctx, srv.Interface) {
		return nil
	}
	if terr := c.isolator.Teardown(ctx, srv.Interface, srv.Subnet); terr != nil {
		c.log(id).Warnf("isolation teardown before re-apply: %v", terr)
	}
	if aerr := c.isolator.Apply(ctx, srv.Interface, srv.Subnet, enableNAT, blockLANCIDRs); aerr != nil {
		return fmt.Errorf("re-applying isolation for %s: %w", srv.Interface, aerr)
	}
	return nil
}

// UpdateObfuscation replaces a server's interface-level obfuscation
// parameters. Validation is mandatory. A running server needs a full
// interface reload; these values cannot be hot-patched peer-at-a-time.
// Existing clients keep their creation-time snapshots untouched.
func (c *Controller) UpdateObfuscation(ctx context.Context, id string, params *model.ObfuscationParams) (err error) {
	defer func() { c.metrics.Observe("update_obfuscation", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}

	mtu := srv.MTU
	if params != nil && params.MTU != 0 {
		mtu = params.MTU
	}
	// Validate handles nil params; the violation comes back to the caller
	// instead of a dereference blowing up here.
	if violations := obfuscation.Validate(params, mtu); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	params = params.Clone()
	params.MTU = mtu
	for i := 1; i <= 5; i++ {
		params.SetIValue(i, params.IValues()[i-1])
	}

	if err := c.store.Mutate(func(m *model.Model) error {
		srv.Obfuscation = params
		srv.MTU = mtu
		return nil
	}); err != nil {
		return err
	}
	if err := c.writeServerConfig(srv); err != nil {
		return err
	}

	if !c.backend.InterfaceExists(ctx, srv.Interface) {
		return nil
	}
	c.log(id).Infof("reloading %s for new obfuscation parameters", srv.Interface)
	if err := c.backend.TearDown(ctx, srv.Interface); err != nil {
		return fmt.Errorf("reloading %s: %w", srv.Interface, err)
	}
	if err := c.backend.BringUp(ctx, srv.ConfigPath); err != nil {
		// Interface is down and stays down; record that rather than
		// pretending the reload half-succeeded.
		if serr := c.setStatus(srv, model.StatusStopped); serr != nil {
			c.log(id).Errorf("persisting stopped status failed: %v", serr)
		}
		if terr := c.isolator.Teardown(ctx, srv.Interface, srv.Subnet); terr != nil {
			c.log(id).Warnf("isolation teardown after failed reload: %v", terr)
		}
		return fmt.Errorf("reloading %s: %w", srv.Interface, err)
	}
	if terr := c.isolator.Teardown(ctx, srv.Interface, srv.Subnet); terr != nil {
		c.log(id).Warnf("isolation teardown before re-apply: %v", terr)
	}
	if aerr := c.isolator.Apply(ctx, srv.Interface, srv.Subnet, srv.EnableNAT, srv.BlockLANCIDRs); aerr != nil {
		return fmt.Errorf("re-applying isolation after reload: %w", aerr)
	}
	return nil
}

// UpdateServerIParams updates the server's default I1-I5 values. These are
// applied to new clients only: they are not written into the server config
// file, need no restart, and never touch existing clients' snapshots.
func (c *Controller) UpdateServerIParams(ctx context.Context, id string, iParams map[string]string) (err error) {
	defer func() { c.metrics.Observe("update_server_iparams", err) }()
	unlock := c.store.LockServer(id)
	defer unlock()

	srv, err := c.findServer(id)
	if err != nil {
		return err
	}
	return c.store.Mutate(func(m *model.Model) error {
		if srv.Obfuscation == nil {
			srv.Obfuscation = &model.ObfuscationParams{MTU: srv.MTU}
		}
		applyIParams(srv.Obfuscation, iParams)
		return nil
	})
}

// ServerConfig returns the rendered server config text. The render walks the
// client list, so it runs inside the store's read lock; a concurrent
// AddClient cannot grow the slice mid-render.
func (c *Controller) ServerConfig(id string, includeComments bool) (string, error) {
	var text string
	var found bool
	c.store.View(func(m *model.Model) {
		if srv := m.Server(id); srv != nil {
			found = true
			text = render.ServerConfig(srv, includeComments)
		}
	})
	if !found {
		return "", &NotFoundError{Kind: "server", ID: id}
	}
	return text, nil
}

// Status derives a server's current status from interface presence and
// persists the hint when it changed.
func (c *Controller) Status(ctx context.Context, id string) (model.ServerStatus, error) {
	srv, err := c.findServer(id)
	if err != nil {
		return "", err
	}
	status := model.StatusStopped
	if c.backend.InterfaceExists(ctx, srv.Interface) {
		status = model.StatusRunning
	}
	if srv.Status != status {
		if err := c.setStatus(srv, status); err != nil {
			return status, err
		}
	}
	return status, nil
}

func (c *Controller) setStatus(srv *model.Server, status model.ServerStatus) error {
	return c.store.Mutate(func(m *model.Model) error {
		srv.Status = status
		return nil
	})
}

// applyIParams copies sanitized I1-I5 values from the request map. Keys not
// present in the map keep their stored value.
func applyIParams(p *model.ObfuscationParams, iParams map[string]string) {
	keys := [5]string{"I1", "I2", "I3", "I4", "I5"}
	for i, k := range keys {
		if v, ok := iParams[k]; ok {
			p.SetIValue(i+1, v)
		}
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
