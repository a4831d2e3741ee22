// Package render turns server and client records into the tunnel tool's
// INI-style config text. Two modes exist: the full variant carries
// explanatory comments (and a generation timestamp in client configs), the
// clean variant is semantically identical with every decoration stripped so
// its byte length never exceeds the full variant for the same parameters.
package render

import (
	"fmt"
	"strings"
	"time"

	"awgman/pkg/model"
)

// persistentKeepalive is the keepalive interval emitted into client configs.
const persistentKeepalive = 25

// Clock supplies the timestamp for the full client config header. Swappable
// for deterministic tests.
var Clock = time.Now

// ServerConfig renders the full interface config consumed by the tunnel
// binary, including one [Peer] block per client in insertion order.
func ServerConfig(s *model.Server, includeComments bool) string {
	var b strings.Builder

	prefix := subnetPrefixLen(s.Subnet)
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", s.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/%s\n", s.ServerIP, prefix)
	fmt.Fprintf(&b, "ListenPort = %d\n", s.Port)
	fmt.Fprintf(&b, "SaveConfig = false\n")
	fmt.Fprintf(&b, "MTU = %d\n", s.MTU)

	if s.ObfuscationEnabled && s.Obfuscation != nil {
		writeObfuscationBlock(&b, s.Obfuscation)
	}

	for _, c := range s.Clients {
		b.WriteString("\n")
		if includeComments {
			fmt.Fprintf(&b, "# Client: %s\n", model.SanitizeValue(c.Name))
		}
		fmt.Fprintf(&b, "[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", c.PublicKey)
		if c.PresharedKey != "" {
			fmt.Fprintf(&b, "PresharedKey = %s\n", c.PresharedKey)
		}
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", c.ClientIP)
	}

	return b.String()
}

// ClientConfig renders the importable config for one client. Interface-level
// obfuscation values mirror the client's stored snapshot, not the server's
// current defaults; I1-I5 lines are emitted only for non-empty values.
func ClientConfig(s *model.Server, c *model.Client, includeComments bool) string {
	var b strings.Builder

	if includeComments {
		fmt.Fprintf(&b, "# AmneziaWG Client Configuration\n")
		fmt.Fprintf(&b, "# Server: %s\n", model.SanitizeValue(s.Name))
		fmt.Fprintf(&b, "# Client: %s\n", model.SanitizeValue(c.Name))
		fmt.Fprintf(&b, "# Generated: %s\n", Clock().Format(time.ANSIC))
		fmt.Fprintf(&b, "# Server IP: %s:%d\n", s.PublicIP, s.Port)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", c.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/32\n", c.ClientIP)
	fmt.Fprintf(&b, "DNS = %s\n", strings.Join(s.DNS, ", "))
	fmt.Fprintf(&b, "MTU = %d\n", s.MTU)

	if c.ObfuscationEnabled && c.Obfuscation != nil {
		writeObfuscationBlock(&b, c.Obfuscation)
		iv := c.Obfuscation.IValues()
		for i, v := range iv {
			v = model.SanitizeValue(v)
			if v != "" {
				fmt.Fprintf(&b, "I%d = %s\n", i+1, v)
			}
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", s.PublicKey)
	if c.PresharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", c.PresharedKey)
	}
	fmt.Fprintf(&b, "Endpoint = %s:%d\n", s.PublicIP, s.Port)
	fmt.Fprintf(&b, "AllowedIPs = 0.0.0.0/0\n")
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", persistentKeepalive)

	return b.String()
}

// writeObfuscationBlock emits the interface-level obfuscation lines shared by
// server and client configs. S3/S4 are emitted only when both are set; a lone
// value is a validation error upstream, never dropped silently here.
func writeObfuscationBlock(b *strings.Builder, p *model.ObfuscationParams) {
	fmt.Fprintf(b, "Jc = %d\n", p.Jc)
	fmt.Fprintf(b, "Jmin = %d\n", p.Jmin)
	fmt.Fprintf(b, "Jmax = %d\n", p.Jmax)
	fmt.Fprintf(b, "S1 = %d\n", p.S1)
	fmt.Fprintf(b, "S2 = %d\n", p.S2)
	if p.S3 != "" && p.S4 != "" {
		fmt.Fprintf(b, "S3 = %s\n", model.SanitizeValue(p.S3))
		fmt.Fprintf(b, "S4 = %s\n", model.SanitizeValue(p.S4))
	}
	fmt.Fprintf(b, "H1 = %d\n", p.H1)
	fmt.Fprintf(b, "H2 = %d\n", p.H2)
	fmt.Fprintf(b, "H3 = %d\n", p.H3)
	fmt.Fprintf(b, "H4 = %d\n", p.H4)
}

// subnetPrefixLen extracts the prefix length from a CIDR string, defaulting
// to /24 when the subnet carries no prefix.
func subnetPrefixLen(subnet string) string {
	if i := strings.IndexByte(subnet, '/'); i >= 0 {
		return subnet[i+1:]
	}
	return "24"
}
