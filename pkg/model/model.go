// Package model defines the persisted data model for servers, clients and
// their obfuscation parameters. The persisted JSON document is the single
// authoritative source of truth; rendered config files and live interface
// state are always derived from it, never read back as truth.
package model

import "strings"

// ServerStatus is the lifecycle status of a server. The persisted value is a
// hint only: on startup it is reconciled against actually-detected interface
// state.
type ServerStatus string

const (
	StatusStopped ServerStatus = "stopped"
	StatusRunning ServerStatus = "running"
)

// ObfuscationParams holds the AmneziaWG-style obfuscation tuning values for
// one interface. Jc/Jmin/Jmax shape junk packets, S1/S2 pad the handshake
// messages, H1-H4 replace the protocol magic headers. S3/S4 are an optional
// pass-through pair rendered only when both are set. I1-I5 are opaque
// client-only signature descriptors; an empty value emits no config line.
type ObfuscationParams struct {
	Jc   int    `json:"Jc"`
	Jmin int    `json:"Jmin"`
	Jmax int    `json:"Jmax"`
	S1   int    `json:"S1"`
	S2   int    `json:"S2"`
	S3   string `json:"S3,omitempty"`
	S4   string `json:"S4,omitempty"`
	H1   uint32 `json:"H1"`
	H2   uint32 `json:"H2"`
	H3   uint32 `json:"H3"`
	H4   uint32 `json:"H4"`
	I1   string `json:"I1"`
	I2   string `json:"I2"`
	I3   string `json:"I3"`
	I4   string `json:"I4"`
	I5   string `json:"I5"`
	MTU  int    `json:"MTU"`
}

// Clone returns a copy of the params. Client records store a clone taken at
// creation time so later edits to the server defaults never leak into
// existing clients.
func (p *ObfuscationParams) Clone() *ObfuscationParams {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// IValues returns the I1-I5 values in order.
func (p *ObfuscationParams) IValues() [5]string {
	if p == nil {
		return [5]string{}
	}
	return [5]string{p.I1, p.I2, p.I3, p.I4, p.I5}
}

// SetIValue sets one of I1-I5 by 1-based index. Values are forced single-line
// so they cannot break the rendered config format.
func (p *ObfuscationParams) SetIValue(n int, v string) {
	v = SanitizeValue(v)
	switch n {
	case 1:
		p.I1 = v
	case 2:
		p.I2 = v
	case 3:
		p.I3 = v
	case 4:
		p.I4 = v
	case 5:
		p.I5 = v
	}
}

// SanitizeValue collapses a value to a single trimmed line so it is safe to
// embed into the INI-style config format.
func SanitizeValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.TrimSpace(v)
}

// Client is one peer of a server. The keypair and address are assigned at
// creation and never regenerated. Obfuscation holds the client's own snapshot
// of the server defaults (plus any per-client I1-I5 overrides) taken at
// creation time.
type Client struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	ServerID           string             `json:"server_id"`
	Status             string             `json:"status"`
	CreatedAt          int64              `json:"created_at"`
	PrivateKey         string             `json:"client_private_key"`
	PublicKey          string             `json:"client_public_key"`
	PresharedKey       string             `json:"preshared_key"`
	ClientIP           string             `json:"client_ip"`
	ObfuscationEnabled bool               `json:"obfuscation_enabled"`
	Obfuscation        *ObfuscationParams `json:"obfuscation_params,omitempty"`
}

// Server is one managed tunnel instance. Clients keeps insertion order;
// address assignment continuity depends on it.
type Server struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Port               int                `json:"port"`
	Status             ServerStatus       `json:"status"`
	Interface          string             `json:"interface"`
	ConfigPath         string             `json:"config_path"`
	PublicKey          string             `json:"server_public_key"`
	PrivateKey         string             `json:"server_private_key"`
	Subnet             string             `json:"subnet"`
	ServerIP           string             `json:"server_ip"`
	MTU                int                `json:"mtu"`
	PublicIP           string             `json:"public_ip"`
	DNS                []string           `json:"dns"`
	ObfuscationEnabled bool               `json:"obfuscation_enabled"`
	Obfuscation        *ObfuscationParams `json:"obfuscation_params,omitempty"`
	AutoStart          bool               `json:"auto_start"`
	EnableNAT          bool               `json:"enable_nat"`
	BlockLANCIDRs      bool               `json:"block_lan_cidrs"`
	CreatedAt          int64              `json:"created_at"`
	Clients            []*Client          `json:"clients"`
}

// Client returns the client with the given id, or nil.
func (s *Server) Client(id string) *Client {
	for _, c := range s.Clients {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Model is the root of the persisted document.
type Model struct {
	Servers []*Server `json:"servers"`
}

// Server returns the server with the given id, or nil.
func (m *Model) Server(id string) *Server {
	for _, s := range m.Servers {
		if s.ID == id {
			return s
		}
	}
	return nil
}
