// Package config provides configuration handling for the control plane.
package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"awgman/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Config is the complete control-plane configuration.
type Config struct {
	// ConfigRoot is the directory holding the persisted model and rendered
	// configs.
	ConfigRoot string `json:"configRoot" yaml:"configRoot"`

	// Defaults applied to newly created servers.
	DefaultPort   int      `json:"defaultPort" yaml:"defaultPort"`
	DefaultSubnet string   `json:"defaultSubnet" yaml:"defaultSubnet"`
	DefaultMTU    int      `json:"defaultMtu" yaml:"defaultMtu"`
	DefaultDNS    []string `json:"defaultDns" yaml:"defaultDns"`

	EnableNAT     bool `json:"enableNat" yaml:"enableNat"`
	BlockLANCIDRs bool `json:"blockLanCidrs" yaml:"blockLanCidrs"`

	// AutoStartServers brings configured servers up at process start. This
	// is startup orchestration policy; the store itself never auto-starts.
	AutoStartServers bool `json:"autoStartServers" yaml:"autoStartServers"`

	// PublicIP overrides detection when set.
	PublicIP string `json:"publicIp" yaml:"publicIp"`

	// ActiveThresholdSec classifies a peer active when its latest handshake
	// is at most this old.
	ActiveThresholdSec int `json:"activeThresholdSec" yaml:"activeThresholdSec"`

	// MonitorIntervalSec is the traffic monitor poll interval.
	MonitorIntervalSec int `json:"monitorIntervalSec" yaml:"monitorIntervalSec"`

	// HealthAddr is the listen address for the health/metrics endpoint.
	HealthAddr string `json:"healthAddr" yaml:"healthAddr"`

	// External binary and script locations.
	AWGPath       string `json:"awgPath" yaml:"awgPath"`
	AWGQuickPath  string `json:"awgQuickPath" yaml:"awgQuickPath"`
	SetupScript   string `json:"setupScript" yaml:"setupScript"`
	CleanupScript string `json:"cleanupScript" yaml:"cleanupScript"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path; empty disables file logging.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ConfigRoot:         "/etc/amnezia",
		DefaultPort:        51820,
		DefaultSubnet:      "10.0.0.0/24",
		DefaultMTU:         1280,
		DefaultDNS:         []string{"8.8.8.8", "1.1.1.1"},
		EnableNAT:          true,
		BlockLANCIDRs:      true,
		AutoStartServers:   true,
		ActiveThresholdSec: 300,
		MonitorIntervalSec: 7,
		HealthAddr:         ":8080",
		AWGPath:            "/usr/bin/awg",
		AWGQuickPath:       "/usr/bin/awg-quick",
		SetupScript:        "/app/scripts/setup_iptables.sh",
		CleanupScript:      "/app/scripts/cleanup_iptables.sh",
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// ModelPath returns the persisted model document location.
func (c *Config) ModelPath() string {
	return filepath.Join(c.ConfigRoot, "web_config.json")
}

// RenderedConfigDir returns the directory holding rendered server configs.
func (c *Config) RenderedConfigDir() string {
	return filepath.Join(c.ConfigRoot, "amneziawg")
}

// ActiveThreshold returns the handshake freshness threshold as a duration.
func (c *Config) ActiveThreshold() time.Duration {
	return time.Duration(c.ActiveThresholdSec) * time.Second
}

// MonitorInterval returns the traffic monitor poll interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSec) * time.Second
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	if val := os.Getenv("CONFIG_ROOT"); val != "" {
		config.ConfigRoot = val
	}
	if val := os.Getenv("DEFAULT_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.DefaultPort = port
		}
	}
	if val := os.Getenv("DEFAULT_SUBNET"); val != "" {
		config.DefaultSubnet = val
	}
	if val := os.Getenv("DEFAULT_MTU"); val != "" {
		if mtu, err := strconv.Atoi(val); err == nil {
			config.DefaultMTU = mtu
		}
	}
	if val := os.Getenv("DEFAULT_DNS"); val != "" {
		var dns []string
		for _, d := range strings.Split(val, ",") {
			if d = strings.TrimSpace(d); d != "" {
				dns = append(dns, d)
			}
		}
		config.DefaultDNS = dns
	}
	if val := os.Getenv("ENABLE_NAT"); val != "" {
		config.EnableNAT = truthy(val)
	}
	if val := os.Getenv("BLOCK_LAN_CIDRS"); val != "" {
		config.BlockLANCIDRs = truthy(val)
	}
	if val := os.Getenv("AUTO_START_SERVERS"); val != "" {
		config.AutoStartServers = truthy(val)
	}
	if val := os.Getenv("PUBLIC_IP"); val != "" {
		config.PublicIP = val
	}
	if val := os.Getenv("ACTIVE_THRESHOLD_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.ActiveThresholdSec = n
		}
	}
	if val := os.Getenv("MONITOR_INTERVAL_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.MonitorIntervalSec = n
		}
	}
	if val := os.Getenv("HEALTH_ADDR"); val != "" {
		config.HealthAddr = val
	}
	if val := os.Getenv("AWG_PATH"); val != "" {
		config.AWGPath = val
	}
	if val := os.Getenv("AWG_QUICK_PATH"); val != "" {
		config.AWGQuickPath = val
	}
	if val := os.Getenv("SETUP_SCRIPT"); val != "" {
		config.SetupScript = val
	}
	if val := os.Getenv("CLEANUP_SCRIPT"); val != "" {
		config.CleanupScript = val
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOGGING_MAX_SIZE"); val != "" {
		if maxSize, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxSize = maxSize
		}
	}
	if val := os.Getenv("LOGGING_MAX_BACKUPS"); val != "" {
		if maxBackups, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxBackups = maxBackups
		}
	}
	if val := os.Getenv("LOGGING_MAX_AGE"); val != "" {
		if maxAge, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxAge = maxAge
		}
	}
}

// truthy parses the permissive boolean form the env variables use.
func truthy(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ConfigRoot == "" {
		return fmt.Errorf("config root cannot be empty")
	}
	if c.DefaultPort < 1 || c.DefaultPort > 65535 {
		return fmt.Errorf("invalid default port: %d", c.DefaultPort)
	}
	if _, err := netip.ParsePrefix(c.DefaultSubnet); err != nil {
		return fmt.Errorf("invalid default subnet (must be in CIDR notation, e.g., '10.0.0.0/24'): %w", err)
	}
	if c.DefaultMTU < 1280 || c.DefaultMTU > 1440 {
		return fmt.Errorf("invalid default MTU: %d", c.DefaultMTU)
	}
	for _, d := range c.DefaultDNS {
		if _, err := netip.ParseAddr(d); err != nil {
			return fmt.Errorf("invalid DNS resolver address: %s", d)
		}
	}
	if c.MonitorIntervalSec <= 0 {
		return fmt.Errorf("invalid monitor interval: %d", c.MonitorIntervalSec)
	}
	if c.ActiveThresholdSec <= 0 {
		return fmt.Errorf("invalid active threshold: %d", c.ActiveThresholdSec)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir := filepath.Dir(c.Logging.File)
		filename := filepath.Base(c.Logging.File)
		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}
