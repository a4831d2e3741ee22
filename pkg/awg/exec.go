package awg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"awgman/pkg/logging"

	"github.com/sirupsen/logrus"
)

// ExecBackend drives awg / awg-quick via exec. Non-zero exits and unreadable
// output become ToolError values, never process-fatal conditions.
type ExecBackend struct {
	// AWGPath is the path of the awg binary.
	AWGPath string
	// AWGQuickPath is the path of the awg-quick binary.
	AWGQuickPath string
	// IPPath is the path of the ip binary, used for interface presence checks.
	IPPath string
}

var _ Backend = (*ExecBackend)(nil)

// NewExecBackend returns an exec backend with the standard binary locations.
func NewExecBackend() *ExecBackend {
	return &ExecBackend{
		AWGPath:      "/usr/bin/awg",
		AWGQuickPath: "/usr/bin/awg-quick",
		IPPath:       "ip",
	}
}

func (b *ExecBackend) run(ctx context.Context, op string, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		logging.WithFields(logrus.Fields{
			"component": "awg",
			"op":        op,
			"cmd":       name,
		}).Warnf("external tool failed: %v", err)
		return text, &ToolError{Op: op, Output: text, Err: err}
	}
	return text, nil
}

// BringUp runs `awg-quick up <configPath>`.
func (b *ExecBackend) BringUp(ctx context.Context, configPath string) error {
	_, err := b.run(ctx, "bring-up", "", b.AWGQuickPath, "up", configPath)
	return err
}

// TearDown runs `awg-quick down <iface>`.
func (b *ExecBackend) TearDown(ctx context.Context, iface string) error {
	_, err := b.run(ctx, "tear-down", "", b.AWGQuickPath, "down", iface)
	return err
}

// AddPeer runs `awg set <iface> peer <key> allowed-ips <ip>/32`, feeding the
// preshared key over stdin so it never appears in the process list.
func (b *ExecBackend) AddPeer(ctx context.Context, iface, publicKey, allowedIP, presharedKey string) error {
	args := []string{"set", iface, "peer", publicKey, "allowed-ips", fmt.Sprintf("%s/32", allowedIP)}
	stdin := ""
	if presharedKey != "" {
		args = append(args, "preshared-key", "/dev/stdin")
		stdin = presharedKey + "\n"
	}
	_, err := b.run(ctx, "add-peer", stdin, b.AWGPath, args...)
	return err
}

// RemovePeer runs `awg set <iface> peer <key> remove`.
func (b *ExecBackend) RemovePeer(ctx context.Context, iface, publicKey string) error {
	_, err := b.run(ctx, "remove-peer", "", b.AWGPath, "set", iface, "peer", publicKey, "remove")
	return err
}

// Show runs `awg show <iface>`. An absent interface yields an empty string
// and no error; a stopped server is a normal state, not a failure.
func (b *ExecBackend) Show(ctx context.Context, iface string) (string, error) {
	if !b.InterfaceExists(ctx, iface) {
		return "", nil
	}
	out, err := b.run(ctx, "show", "", b.AWGPath, "show", iface)
	if err != nil {
		return "", err
	}
	return out, nil
}

// InterfaceExists checks `ip link show <iface>`.
func (b *ExecBackend) InterfaceExists(ctx context.Context, iface string) bool {
	cmd := exec.CommandContext(ctx, b.IPPath, "link", "show", iface)
	return cmd.Run() == nil
}
