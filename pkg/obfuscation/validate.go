// Package obfuscation validates and generates AmneziaWG obfuscation
// parameter sets. The numeric constraints are interdependent through the
// interface MTU, so every rule is checked independently and all violations
// are reported together rather than short-circuiting on the first.
package obfuscation

import (
	"fmt"
	"math"

	"awgman/pkg/model"
)

const (
	// MinMTU and MaxMTU bound the interface MTU the parameters are tied to.
	MinMTU = 1280
	MaxMTU = 1440

	// headerMin is the lowest accepted magic header value. Values below it
	// collide with the reserved WireGuard message type space.
	headerMin = 5
	headerMax = math.MaxInt32

	// s1Reserve and s2Reserve are the handshake message overheads that the
	// padded init/response packets must still fit under the MTU.
	s1Reserve = 148
	s2Reserve = 92
)

// Violation describes one failed constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// Validate checks every constraint on p relative to mtu and returns the full
// list of violations. An empty list means the parameter set is valid.
//
// I1-I5 are deliberately not validated here: they are opaque text passed
// through to the client config, and any size limits are a render/QR concern.
func Validate(p *model.ObfuscationParams, mtu int) []Violation {
	var out []Violation
	add := func(field, format string, args ...interface{}) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if mtu < MinMTU || mtu > MaxMTU {
		add("MTU", "must be in [%d, %d], got %d", MinMTU, MaxMTU, mtu)
	}
	if p == nil {
		add("params", "missing parameter set")
		return out
	}

	if p.Jc < 1 || p.Jc > 128 {
		add("Jc", "must be in [1, 128], got %d", p.Jc)
	}
	if p.Jmin < 1 || p.Jmin > mtu-1 {
		add("Jmin", "must be in [1, %d], got %d", mtu-1, p.Jmin)
	}
	if p.Jmax <= p.Jmin || p.Jmax > mtu {
		add("Jmax", "must be in (Jmin, %d], got %d (Jmin=%d)", mtu, p.Jmax, p.Jmin)
	}
	if p.S1 < 1 || p.S1 > mtu-s1Reserve {
		add("S1", "must be in [1, %d], got %d", mtu-s1Reserve, p.S1)
	}
	if p.S2 < 1 || p.S2 > mtu-s2Reserve {
		add("S2", "must be in [1, %d], got %d", mtu-s2Reserve, p.S2)
	}
	if p.S1+56 == p.S2 {
		add("S2", "must not equal S1+56 (%d)", p.S1+56)
	}
	if (p.S3 == "") != (p.S4 == "") {
		add("S3/S4", "must be set together or both left empty")
	}

	headers := []struct {
		name string
		val  uint32
	}{{"H1", p.H1}, {"H2", p.H2}, {"H3", p.H3}, {"H4", p.H4}}
	for _, h := range headers {
		if h.val < headerMin || h.val > headerMax {
			add(h.name, "must be in [%d, %d], got %d", headerMin, headerMax, h.val)
		}
	}
	for i := 0; i < len(headers); i++ {
		for j := i + 1; j < len(headers); j++ {
			if headers[i].val == headers[j].val {
				add(headers[j].name, "must differ from %s (both %d)", headers[i].name, headers[i].val)
			}
		}
	}

	return out
}
