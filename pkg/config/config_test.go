package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/etc/amnezia", cfg.ConfigRoot)
	assert.Equal(t, 51820, cfg.DefaultPort)
	assert.Equal(t, "10.0.0.0/24", cfg.DefaultSubnet)
	assert.Equal(t, 1280, cfg.DefaultMTU)
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, cfg.DefaultDNS)
	assert.True(t, cfg.EnableNAT)
	assert.True(t, cfg.AutoStartServers)
	assert.Equal(t, 300, cfg.ActiveThresholdSec)
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "/etc/amnezia/web_config.json", cfg.ModelPath())
	assert.Equal(t, "/etc/amnezia/amneziawg", cfg.RenderedConfigDir())
	assert.Equal(t, 300*time.Second, cfg.ActiveThreshold())
	assert.Equal(t, 7*time.Second, cfg.MonitorInterval())
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"configRoot": "/data/awg",
		"defaultPort": 52000,
		"logging": {"level": "debug"}
	}`), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, "/data/awg", cfg.ConfigRoot)
	assert.Equal(t, 52000, cfg.DefaultPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, "10.0.0.0/24", cfg.DefaultSubnet)
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaultMtu: 1380\ndefaultDns:\n  - 9.9.9.9\n"), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, 1380, cfg.DefaultMTU)
	assert.Equal(t, []string{"9.9.9.9"}, cfg.DefaultDNS)
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	assert.Error(t, LoadFromFile(path, DefaultConfig()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_ROOT", "/data/awg")
	t.Setenv("DEFAULT_PORT", "52000")
	t.Setenv("DEFAULT_DNS", "9.9.9.9, 149.112.112.112")
	t.Setenv("ENABLE_NAT", "false")
	t.Setenv("BLOCK_LAN_CIDRS", "off")
	t.Setenv("AUTO_START_SERVERS", "0")
	t.Setenv("ACTIVE_THRESHOLD_SEC", "120")
	t.Setenv("LOGGING_LEVEL", "warn")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "/data/awg", cfg.ConfigRoot)
	assert.Equal(t, 52000, cfg.DefaultPort)
	assert.Equal(t, []string{"9.9.9.9", "149.112.112.112"}, cfg.DefaultDNS)
	assert.False(t, cfg.EnableNAT)
	assert.False(t, cfg.BlockLANCIDRs)
	assert.False(t, cfg.AutoStartServers)
	assert.Equal(t, 120, cfg.ActiveThresholdSec)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("DEFAULT_PORT", "not-a-number")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	assert.Equal(t, 51820, cfg.DefaultPort)
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"0", "false", "FALSE", "no", "off", " Off "} {
		assert.False(t, truthy(v), "truthy(%q)", v)
	}
	for _, v := range []string{"1", "true", "yes", "on", "anything"} {
		assert.True(t, truthy(v), "truthy(%q)", v)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty root", func(c *Config) { c.ConfigRoot = "" }},
		{"bad port", func(c *Config) { c.DefaultPort = 0 }},
		{"bad subnet", func(c *Config) { c.DefaultSubnet = "10.0.0.0" }},
		{"mtu too small", func(c *Config) { c.DefaultMTU = 1200 }},
		{"mtu too large", func(c *Config) { c.DefaultMTU = 1500 }},
		{"bad dns", func(c *Config) { c.DefaultDNS = []string{"not-an-ip"} }},
		{"bad monitor interval", func(c *Config) { c.MonitorIntervalSec = 0 }},
		{"bad threshold", func(c *Config) { c.ActiveThresholdSec = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
