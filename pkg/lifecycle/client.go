package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"awgman/pkg/identity"
	"awgman/pkg/model"
	"awgman/pkg/render"
	"awgman/pkg/traffic"
)

// AddClientRequest carries the caller-supplied client parameters. IParams,
// when present, overrides the server's default I1-I5 values in the client's
// creation-time snapshot; the values are opaque free-form text.
type AddClientRequest struct {
	Name    string
	IParams map[string]string
}

// AddClient creates a client: keypair, preshared key, the lowest free subnet
// address and a snapshot of the server's obfuscation defaults. On a running
// server the peer is also added to the live interface; live add and
// persistence must both succeed or the whole operation fails.
func (c *Controller) AddClient(ctx context.Context, serverID string, req AddClientRequest) (client *model.Client, configText string, err error) {
	defer func() { c.metrics.Observe("add_client", err) }()
	unlock := c.store.LockServer(serverID)
	defer unlock()

	srv, err := c.findServer(serverID)
	if err != nil {
		return nil, "", err
	}

	name := req.Name
	if name == "" {
		name = "New Client"
	}

	subnet, serverIP, taken, err := serverAddrs(srv)
	if err != nil {
		return nil, "", err
	}
	clientIP, err := identity.AssignClientAddress(subnet, serverIP, taken)
	if err != nil {
		if errors.Is(err, identity.ErrAddressSpaceExhausted) {
			return nil, "", &ConflictError{Resource: "address space", Detail: fmt.Sprintf("subnet %s has no free host address", srv.Subnet)}
		}
		return nil, "", err
	}

	keys, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, "", err
	}
	psk, err := identity.GeneratePresharedKey()
	if err != nil {
		return nil, "", err
	}

	// Snapshot the server defaults now; later edits to the server must never
	// reach this client.
	var params *model.ObfuscationParams
	if srv.ObfuscationEnabled && srv.Obfuscation != nil {
		params = srv.Obfuscation.Clone()
		applyIParams(params, req.IParams)
	}

	client = &model.Client{
		ID:                 newID(),
		Name:               model.SanitizeValue(name),
		ServerID:           srv.ID,
		Status:             "inactive",
		CreatedAt:          time.Now().Unix(),
		PrivateKey:         keys.PrivateKey,
		PublicKey:          keys.PublicKey,
		PresharedKey:       psk,
		ClientIP:           clientIP.String(),
		ObfuscationEnabled: srv.ObfuscationEnabled,
		Obfuscation:        params,
	}

	running := c.backend.InterfaceExists(ctx, srv.Interface)
	if running {
		if err := c.backend.AddPeer(ctx, srv.Interface, client.PublicKey, client.ClientIP, client.PresharedKey); err != nil {
			return nil, "", fmt.Errorf("adding peer to live interface %s: %w", srv.Interface, err)
		}
	}

	if err := c.store.Mutate(func(m *model.Model) error {
		srv.Clients = append(srv.Clients, client)
		return nil
	}); err != nil {
		c.rollbackLivePeer(ctx, running, srv, client.PublicKey)
		return nil, "", err
	}
	if err := c.writeServerConfig(srv); err != nil {
		// Keep model and file in lockstep: drop the record again.
		if merr := c.store.Mutate(func(m *model.Model) error {
			srv.Clients = srv.Clients[:len(srv.Clients)-1]
			return nil
		}); merr != nil {
			c.log(srv.ID).Errorf("rollback after config write failure also failed: %v", merr)
		}
		c.rollbackLivePeer(ctx, running, srv, client.PublicKey)
		return nil, "", err
	}

	c.log(srv.ID).Infof("client %q added (%s)", client.Name, client.ClientIP)
	return client, render.ClientConfig(srv, client, true), nil
}

func (c *Controller) rollbackLivePeer(ctx context.Context, running bool, srv *model.Server, publicKey string) {
	if !running {
		return
	}
	if err := c.backend.RemovePeer(ctx, srv.Interface, publicKey); err != nil {
		c.log(srv.ID).Errorf("rollback remove-peer failed: %v", err)
	}
}

// RemoveClient deletes a client. On a running server the live peer removal
// and the persisted update must both succeed.
func (c *Controller) RemoveClient(ctx context.Context, serverID, clientID string) (err error) {
	defer func() { c.metrics.Observe("remove_client", err) }()
	unlock := c.store.LockServer(serverID)
	defer unlock()

	srv, err := c.findServer(serverID)
	if err != nil {
		return err
	}
	client := srv.Client(clientID)
	if client == nil {
		return &NotFoundError{Kind: "client", ID: clientID}
	}

	if c.backend.InterfaceExists(ctx, srv.Interface) {
		if err := c.backend.RemovePeer(ctx, srv.Interface, client.PublicKey); err != nil {
			return fmt.Errorf("removing peer from live interface %s: %w", srv.Interface, err)
		}
	}

	if err := c.store.Mutate(func(m *model.Model) error {
		for i, cl := range srv.Clients {
			if cl.ID == clientID {
				srv.Clients = append(srv.Clients[:i], srv.Clients[i+1:]...)
				break
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := c.writeServerConfig(srv); err != nil {
		return err
	}

	c.log(srv.ID).Infof("client %q removed", client.Name)
	return nil
}

// UpdateClientIParams updates one client's stored I1-I5 values. They only
// appear in the client's own config, so nothing is rewritten or reloaded.
func (c *Controller) UpdateClientIParams(ctx context.Context, serverID, clientID string, iParams map[string]string) (err error) {
	defer func() { c.metrics.Observe("update_client_iparams", err) }()
	unlock := c.store.LockServer(serverID)
	defer unlock()

	srv, err := c.findServer(serverID)
	if err != nil {
		return err
	}
	client := srv.Client(clientID)
	if client == nil {
		return &NotFoundError{Kind: "client", ID: clientID}
	}
	return c.store.Mutate(func(m *model.Model) error {
		if client.Obfuscation == nil {
			client.Obfuscation = &model.ObfuscationParams{MTU: srv.MTU}
		}
		applyIParams(client.Obfuscation, iParams)
		return nil
	})
}

// ClientConfig returns the rendered importable config for one client. Like
// ServerConfig, the render happens under the store's read lock so concurrent
// mutations cannot race it.
func (c *Controller) ClientConfig(serverID, clientID string, includeComments bool) (string, error) {
	var text string
	var srvFound, clientFound bool
	c.store.View(func(m *model.Model) {
		srv := m.Server(serverID)
		if srv == nil {
			return
		}
		srvFound = true
		client := srv.Client(clientID)
		if client == nil {
			return
		}
		clientFound = true
		text = render.ClientConfig(srv, client, includeComments)
	})
	if !srvFound {
		return "", &NotFoundError{Kind: "server", ID: serverID}
	}
	if !clientFound {
		return "", &NotFoundError{Kind: "client", ID: clientID}
	}
	return text, nil
}

// Traffic collects the per-peer status mapping for a server's interface. A
// stopped server yields an empty mapping.
func (c *Controller) Traffic(ctx context.Context, serverID string) (map[string]traffic.PeerStatus, error) {
	srv, err := c.findServer(serverID)
	if err != nil {
		return nil, err
	}
	peers, err := c.collector.Collect(ctx, srv.Interface)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		active := 0
		for _, p := range peers {
			if p.Active {
				active++
			}
		}
		c.metrics.PeersActive.WithLabelValues(srv.ID).Set(float64(active))
	}
	return peers, nil
}
