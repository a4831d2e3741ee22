// Package awg drives the external tunnel control binaries (awg, awg-quick)
// as black-box processes. The binaries own the actual protocol; this package
// only invokes them and surfaces their failures as recoverable errors.
package awg

import (
	"context"
	"fmt"
)

// ToolError wraps a failed external tool invocation. The combined output is
// carried so callers can surface the underlying diagnostic text.
type ToolError struct {
	Op     string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Backend is the control surface of the external tunnel implementation.
// Every method is a blocking process invocation; callers serialize per
// interface through the lifecycle controller's locking.
type Backend interface {
	// BringUp starts the interface from its on-disk config file.
	BringUp(ctx context.Context, configPath string) error

	// TearDown stops the interface. Tearing down an absent interface is an
	// error at this level; idempotent-cleanup policy is the caller's call.
	TearDown(ctx context.Context, iface string) error

	// AddPeer adds one peer to a running interface without a restart.
	AddPeer(ctx context.Context, iface, publicKey, allowedIP, presharedKey string) error

	// RemovePeer removes one peer from a running interface.
	RemovePeer(ctx context.Context, iface, publicKey string) error

	// Show returns the tool's human-readable status output for the
	// interface, or an empty string when the interface does not exist.
	Show(ctx context.Context, iface string) (string, error)

	// InterfaceExists reports whether the kernel/userspace interface is
	// present. Used for startup reconciliation and status derivation.
	InterfaceExists(ctx context.Context, iface string) bool
}
