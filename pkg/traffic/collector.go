// Package traffic parses the tunnel tool's status output into per-peer
// structured records. Byte counters are monotonic only while the interface
// exists; a stop/start cycle resets them, and callers must not assume they
// persist across restarts.
package traffic

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"awgman/pkg/awg"
)

// DefaultActiveThreshold classifies a peer active when its latest handshake
// is at most this old. A policy constant, not a protocol requirement.
const DefaultActiveThreshold = 300 * time.Second

// PeerStatus is the parsed state of one peer, keyed by public key in the
// Collect result.
type PeerStatus struct {
	RxBytes       uint64    `json:"rx_bytes"`
	TxBytes       uint64    `json:"tx_bytes"`
	Endpoint      string    `json:"endpoint,omitempty"`
	LastHandshake time.Time `json:"last_handshake,omitzero"`

	// HandshakeAge is the handshake recency at parse time; negative when no
	// handshake has ever completed.
	HandshakeAge time.Duration `json:"handshake_age_seconds"`

	// Active is HandshakeAge within the collector's threshold.
	Active bool `json:"active"`
}

// Collector reads and parses status output through a backend.
type Collector struct {
	Backend awg.Backend

	// ActiveThreshold overrides DefaultActiveThreshold when positive.
	ActiveThreshold time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

// NewCollector returns a collector over the given backend with defaults.
func NewCollector(b awg.Backend) *Collector {
	return &Collector{Backend: b}
}

func (c *Collector) threshold() time.Duration {
	if c.ActiveThreshold > 0 {
		return c.ActiveThreshold
	}
	return DefaultActiveThreshold
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Collect returns the per-peer status mapping for an interface. An absent
// interface yields an empty mapping and no error: a stopped server is a
// normal state, not a failure.
func (c *Collector) Collect(ctx context.Context, iface string) (map[string]PeerStatus, error) {
	out, err := c.Backend.Show(ctx, iface)
	if err != nil {
		return nil, err
	}
	return c.parse(out), nil
}

// parse walks the line-oriented show output. Peer sections are keyed by the
// "peer:" line; fields inside a section are "name: value" pairs. Unknown
// lines are skipped so newer tool versions do not break collection.
func (c *Collector) parse(out string) map[string]PeerStatus {
	result := make(map[string]PeerStatus)
	if strings.TrimSpace(out) == "" {
		return result
	}

	now := c.now()
	var peer string
	var cur PeerStatus
	flush := func() {
		if peer != "" {
			result[peer] = cur
		}
		peer = ""
		cur = PeerStatus{}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "peer:"):
			flush()
			peer = strings.TrimSpace(strings.TrimPrefix(line, "peer:"))
			cur.HandshakeAge = -1
		case peer == "":
			// interface header block
		case strings.HasPrefix(line, "endpoint:"):
			ep := strings.TrimSpace(strings.TrimPrefix(line, "endpoint:"))
			if ep != "(none)" {
				cur.Endpoint = ep
			}
		case strings.HasPrefix(line, "latest handshake:"):
			text := strings.TrimSpace(strings.TrimPrefix(line, "latest handshake:"))
			if age, ok := parseHandshakeAge(text); ok {
				cur.HandshakeAge = age
				cur.LastHandshake = now.Add(-age)
				cur.Active = age <= c.threshold()
			}
		case strings.HasPrefix(line, "transfer:"):
			rx, tx := parseTransfer(strings.TrimSpace(strings.TrimPrefix(line, "transfer:")))
			cur.RxBytes = rx
			cur.TxBytes = tx
		}
	}
	flush()
	return result
}

var handshakeUnitRe = regexp.MustCompile(`(\d+)\s+(second|minute|hour|day)s?`)

// parseHandshakeAge converts "1 minute, 2 seconds ago" style text to a
// duration. "Never" (no completed handshake) returns ok=false.
func parseHandshakeAge(text string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" || strings.Contains(s, "never") {
		return 0, false
	}
	if strings.Contains(s, "now") {
		return 0, true
	}

	unitSeconds := map[string]int64{
		"second": 1,
		"minute": 60,
		"hour":   3600,
		"day":    86400,
	}
	var total int64
	for _, m := range handshakeUnitRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		total += n * unitSeconds[m[2]]
	}
	if total == 0 {
		return 0, false
	}
	return time.Duration(total) * time.Second, true
}

// parseTransfer converts "1.39 MiB received, 6.59 MiB sent" into byte
// counts.
func parseTransfer(text string) (rx, tx uint64) {
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasSuffix(part, "received"):
			rx = parseByteSize(strings.TrimSuffix(part, "received"))
		case strings.HasSuffix(part, "sent"):
			tx = parseByteSize(strings.TrimSuffix(part, "sent"))
		}
	}
	return rx, tx
}

var byteUnits = map[string]float64{
	"B":   1,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
}

func parseByteSize(text string) uint64 {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	mult, ok := byteUnits[fields[1]]
	if !ok {
		return 0
	}
	return uint64(v * mult)
}
