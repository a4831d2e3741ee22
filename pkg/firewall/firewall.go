// Package firewall invokes the network-isolation scripts that set up NAT and
// LAN-blocking rules per interface. The scripts own the rule semantics; this
// package only invokes them. Both operations are idempotent from the
// caller's perspective: applying twice or tearing down absent rules is safe.
package firewall

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"awgman/pkg/logging"

	"github.com/sirupsen/logrus"
)

// Isolator is the network-isolation collaborator.
type Isolator interface {
	// Apply installs the rules for an interface and its subnet.
	Apply(ctx context.Context, iface, subnet string, natEnabled, lanBlockEnabled bool) error

	// Teardown removes the rules. Safe to call when no rules exist.
	Teardown(ctx context.Context, iface, subnet string) error
}

// ScriptIsolator shells out to the setup/cleanup scripts, passing the flag
// state through the ENABLE_NAT / BLOCK_LAN_CIDRS environment variables the
// scripts consume.
type ScriptIsolator struct {
	SetupScript   string
	CleanupScript string
}

var _ Isolator = (*ScriptIsolator)(nil)

// NewScriptIsolator returns an isolator using the standard script locations.
func NewScriptIsolator() *ScriptIsolator {
	return &ScriptIsolator{
		SetupScript:   "/app/scripts/setup_iptables.sh",
		CleanupScript: "/app/scripts/cleanup_iptables.sh",
	}
}

func (s *ScriptIsolator) runScript(ctx context.Context, script, iface, subnet string, env []string) error {
	cmd := exec.CommandContext(ctx, script, iface, subnet)
	cmd.Env = append(cmd.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s %s: %w: %s", script, iface, subnet, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func boolEnv(name string, v bool) string {
	if v {
		return name + "=1"
	}
	return name + "=0"
}

// Apply installs rules with the given flags.
func (s *ScriptIsolator) Apply(ctx context.Context, iface, subnet string, natEnabled, lanBlockEnabled bool) error {
	env := []string{
		boolEnv("ENABLE_NAT", natEnabled),
		boolEnv("BLOCK_LAN_CIDRS", lanBlockEnabled),
	}
	if err := s.runScript(ctx, s.SetupScript, iface, subnet, env); err != nil {
		return err
	}
	logging.WithFields(logrus.Fields{
		"component": "firewall",
		"interface": iface,
	}).Debugf("isolation rules applied (nat=%v lan_block=%v)", natEnabled, lanBlockEnabled)
	return nil
}

// Teardown removes rules for the interface/subnet pair.
func (s *ScriptIsolator) Teardown(ctx context.Context, iface, subnet string) error {
	return s.runScript(ctx, s.CleanupScript, iface, subnet, nil)
}

// MockIsolator records Apply/Teardown invocations for tests. Rules models
// the installed rule state so idempotence can be asserted: Apply replaces
// the entry for an interface rather than stacking a duplicate.
type MockIsolator struct {
	Rules map[string]MockRule
	Calls []string

	FailApply    bool
	FailTeardown bool
}

// MockRule is the flag state recorded for one interface.
type MockRule struct {
	Subnet   string
	NAT      bool
	LANBlock bool
}

var _ Isolator = (*MockIsolator)(nil)

// NewMockIsolator returns an empty mock isolator.
func NewMockIsolator() *MockIsolator {
	return &MockIsolator{Rules: make(map[string]MockRule)}
}

func (m *MockIsolator) Apply(ctx context.Context, iface, subnet string, natEnabled, lanBlockEnabled bool) error {
	m.Calls = append(m.Calls, "apply:"+iface)
	if m.FailApply {
		return fmt.Errorf("forced apply failure for %s", iface)
	}
	m.Rules[iface] = MockRule{Subnet: subnet, NAT: natEnabled, LANBlock: lanBlockEnabled}
	return nil
}

func (m *MockIsolator) Teardown(ctx context.Context, iface, subnet string) error {
	m.Calls = append(m.Calls, "teardown:"+iface)
	if m.FailTeardown {
		return fmt.Errorf("forced teardown failure for %s", iface)
	}
	delete(m.Rules, iface)
	return nil
}
