// Package config handles global configuration loading using viper, the
// same construction-time-validated, unknown-key-rejecting shape
// internal/config/config.go used for the capture agent's GlobalConfig,
// adapted to the fragmenter's §6 table plus an ambient Node/Log/Metrics
// section.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level configuration, mapped under the
// `fragmentd:` root key.
type GlobalConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Fragmenter FragmenterConfig `mapstructure:"fragmenter"`
}

// NodeConfig identifies this instance; ambient, carried regardless of
// the core spec's non-goals.
type NodeConfig struct {
	Hostname string            `mapstructure:"hostname"`
	Tags     map[string]string `mapstructure:"tags"`
}

// LogConfig mirrors the teacher's logging shape (internal/log/logger.go):
// level/format plus a list of output sinks.
type LogConfig struct {
	Level   string         `mapstructure:"level"`
	Format  string         `mapstructure:"format"`
	Outputs []OutputConfig `mapstructure:"outputs"`
}

// OutputConfig configures one log sink (console, file, loki).
type OutputConfig struct {
	Type          string            `mapstructure:"type"`
	Path          string            `mapstructure:"path"`
	MaxSizeMB     int               `mapstructure:"max_size_mb"`
	MaxAgeDays    int               `mapstructure:"max_age_days"`
	MaxBackups    int               `mapstructure:"max_backups"`
	Compress      bool              `mapstructure:"compress"`
	Endpoint      string            `mapstructure:"endpoint"`
	Labels        map[string]string `mapstructure:"labels"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval string            `mapstructure:"flush_interval"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// FragmenterConfig is the §6 configuration table, unchanged in
// meaning from the core spec.
type FragmenterConfig struct {
	MTU                uint16   `mapstructure:"mtu"`
	PMTUD              bool     `mapstructure:"pmtud"`
	PMTUTimeoutSeconds uint32   `mapstructure:"pmtu_timeout"`
	PMTULocalAddresses []string `mapstructure:"pmtu_local_addresses"`
	UseAlarms          bool     `mapstructure:"use_alarms"`
	DeterministicSeed  bool     `mapstructure:"deterministic_seed"`
	Port               PortConfig `mapstructure:"port"`
}

// PortConfig selects and configures the concrete port adapter (e.g.
// afpacket) used for input/output/south/north, via internal/ports'
// registry. An empty Driver means the in-memory Link adapter.
type PortConfig struct {
	Driver string         `mapstructure:"driver"`
	Params map[string]any `mapstructure:"params"`
}

// PMTUTimeout returns the configured PMTU cache entry lifetime as a
// time.Duration.
func (f FragmenterConfig) PMTUTimeout() time.Duration {
	return time.Duration(f.PMTUTimeoutSeconds) * time.Second
}

// LocalAddresses parses PMTULocalAddresses into netip.Addr values.
func (f FragmenterConfig) LocalAddresses() ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(f.PMTULocalAddresses))
	for _, s := range f.PMTULocalAddresses {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("pmtu_local_addresses: %q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

type configRoot struct {
	Fragmentd GlobalConfig `mapstructure:"fragmentd"`
}

// Load loads configuration from path. The YAML file uses `fragmentd:`
// as root key; env vars use the FRAGMENTD_ prefix (e.g.
// FRAGMENTD_LOG_LEVEL), matching the teacher's key-replacer approach.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.UnmarshalExact(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Fragmentd

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fragmentd.log.level", "info")
	v.SetDefault("fragmentd.log.format", "json")

	v.SetDefault("fragmentd.metrics.enabled", true)
	v.SetDefault("fragmentd.metrics.listen", ":9091")
	v.SetDefault("fragmentd.metrics.path", "/metrics")

	v.SetDefault("fragmentd.fragmenter.pmtud", false)
	v.SetDefault("fragmentd.fragmenter.pmtu_timeout", 600)
	v.SetDefault("fragmentd.fragmenter.use_alarms", true)
}

// ValidateAndApplyDefaults validates configuration and applies
// runtime defaults (hostname auto-detect), matching the teacher's
// ValidateAndApplyDefaults shape.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	if _, tagged := cfg.Node.Tags["ip"]; !tagged {
		if ip, err := resolveHostIP(); err == nil {
			if cfg.Node.Tags == nil {
				cfg.Node.Tags = make(map[string]string, 1)
			}
			cfg.Node.Tags["ip"] = ip
		}
	}

	if cfg.Fragmenter.MTU < 68 {
		return fmt.Errorf("fragmenter.mtu must be >= 68, got %d", cfg.Fragmenter.MTU)
	}

	if _, err := cfg.Fragmenter.LocalAddresses(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.Fragmenter.PMTULocalAddresses))
	for _, a := range cfg.Fragmenter.PMTULocalAddresses {
		if seen[a] {
			return fmt.Errorf("duplicate pmtu_local_addresses entry: %s", a)
		}
		seen[a] = true
	}

	return nil
}

// resolveHostIP finds the first non-loopback IPv4 address on an up
// interface, used to default Node.Tags["ip"] when the operator hasn't
// set one explicitly. A failure here is not fatal to config loading:
// the tag is just left unset.
func resolveHostIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || (ip4[0] == 169 && ip4[1] == 254) {
				continue
			}
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("no usable interface address found")
}
