// Package config provides configuration management for the travel router.
// It handles loading, saving, and validating the router settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/yllada/travel-router/common"
)

// Config represents the router configuration.
// It is read from a YAML file and then overridden from the environment.
type Config struct {
	// WANInterface is the radio that joins venue WiFi.
	WANInterface string `yaml:"wan_interface"`
	// APInterface is the radio that serves the local access point.
	APInterface string `yaml:"ap_interface"`
	// APSSID is the broadcast name of the local access point.
	APSSID string `yaml:"ap_ssid"`
	// APProfile is the network manager profile name of the access point.
	APProfile string `yaml:"ap_profile"`
	// APSubnet is the client subnet served by the access point.
	APSubnet string `yaml:"ap_subnet"`
	// VenueProfile is the profile name reused for every venue network.
	VenueProfile string `yaml:"venue_profile"`
	// VenuePriority is the autoconnect priority of the venue profile.
	VenuePriority int `yaml:"venue_priority"`

	VPN             VPNConfig      `yaml:"vpn"`
	FallbackHotspot HotspotConfig  `yaml:"fallback_hotspot"`
	Probe           ProbeConfig    `yaml:"probe"`
	Timeouts        TimeoutsConfig `yaml:"timeouts"`
	Log             LogConfig      `yaml:"log"`
}

// VPNConfig holds the VPN daemon settings.
type VPNConfig struct {
	// Command is the VPN client CLI.
	Command string `yaml:"command"`
	// DaemonUnit is the systemd unit of the VPN daemon.
	DaemonUnit string `yaml:"daemon_unit"`
	// DefaultRegion is used when the operator names no region.
	DefaultRegion string `yaml:"default_region"`
	// FallbackRegion is tried once when the requested region fails.
	// Empty lets the daemon pick the best server.
	FallbackRegion string `yaml:"fallback_region"`
	// SkipProbeOnKillSwitch skips internet checks while the kill switch is on.
	SkipProbeOnKillSwitch bool `yaml:"skip_probe_on_killswitch"`
	// AllowlistAPSubnet keeps AP clients reachable under the kill switch.
	AllowlistAPSubnet bool `yaml:"allowlist_ap_subnet"`
}

// HotspotConfig describes the optional phone hotspot used when the venue
// network is gone. Password may be a "keyring:<name>" reference.
type HotspotConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	Profile  string `yaml:"profile"`
	Priority int    `yaml:"priority"`
}

// ProbeConfig holds the reachability probe endpoints.
type ProbeConfig struct {
	// Endpoint returns the caller's public address as plain text.
	Endpoint    string   `yaml:"endpoint"`
	STUNServers []string `yaml:"stun_servers"`
}

// TimeoutsConfig holds the budgets of the bounded waits.
type TimeoutsConfig struct {
	WANAssociation time.Duration `yaml:"wan_association"`
	Internet       time.Duration `yaml:"internet"`
	VPNReady       time.Duration `yaml:"vpn_ready"`
	Probe          time.Duration `yaml:"probe"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the default configuration for a two-radio Pi.
func DefaultConfig() *Config {
	return &Config{
		WANInterface:  common.DefaultWANInterface,
		APInterface:   common.DefaultAPInterface,
		APSSID:        common.DefaultAPSSID,
		APProfile:     common.DefaultAPProfile,
		APSubnet:      common.DefaultAPSubnet,
		VenueProfile:  common.DefaultVenueProfile,
		VenuePriority: common.DefaultVenuePriority,
		VPN: VPNConfig{
			Command:               common.DefaultVPNCommand,
			DaemonUnit:            common.DefaultVPNDaemonUnit,
			DefaultRegion:         common.DefaultVPNRegion,
			SkipProbeOnKillSwitch: true,
			AllowlistAPSubnet:     true,
		},
		FallbackHotspot: HotspotConfig{
			Profile:  common.DefaultHotspotProfile,
			Priority: common.DefaultHotspotPriority,
		},
		Probe: ProbeConfig{
			Endpoint:    common.DefaultProbeEndpoint,
			STUNServers: []string{common.DefaultSTUNServer},
		},
		Timeouts: TimeoutsConfig{
			WANAssociation: common.WANAssociationTimeout,
			Internet:       common.InternetTimeout,
			VPNReady:       common.VPNReadyTimeout,
			Probe:          common.ProbeTimeout,
			PollInterval:   common.PollInterval,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	default:
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: error parsing %s: %v", common.ErrConfigLoad, path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envOverrides are the inputs an operator may set without editing the file.
type envOverrides struct {
	WANInterface  string `envconfig:"TRAVEL_ROUTER_WAN_IFACE,optional"`
	APInterface   string `envconfig:"TRAVEL_ROUTER_AP_IFACE,optional"`
	APSSID        string `envconfig:"TRAVEL_ROUTER_AP_SSID,optional"`
	APSubnet      string `envconfig:"TRAVEL_ROUTER_AP_SUBNET,optional"`
	DefaultRegion string `envconfig:"TRAVEL_ROUTER_VPN_REGION,optional"`
	LogLevel      string `envconfig:"TRAVEL_ROUTER_LOG_LEVEL,optional"`
}

// ApplyEnv overrides fields from TRAVEL_ROUTER_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Init(&env); err != nil {
		return err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.WANInterface, env.WANInterface)
	override(&c.APInterface, env.APInterface)
	override(&c.APSSID, env.APSSID)
	override(&c.APSubnet, env.APSubnet)
	override(&c.VPN.DefaultRegion, env.DefaultRegion)
	override(&c.Log.Level, env.LogLevel)
	return nil
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.VPN.Command == "" {
		c.VPN.Command = def.VPN.Command
	}
	if c.VPN.DaemonUnit == "" {
		c.VPN.DaemonUnit = def.VPN.DaemonUnit
	}
	if c.FallbackHotspot.Profile == "" {
		c.FallbackHotspot.Profile = def.FallbackHotspot.Profile
	}
	if c.Probe.Endpoint == "" {
		c.Probe.Endpoint = def.Probe.Endpoint
	}
	if c.Timeouts.WANAssociation <= 0 {
		c.Timeouts.WANAssociation = def.Timeouts.WANAssociation
	}
	if c.Timeouts.Internet <= 0 {
		c.Timeouts.Internet = def.Timeouts.Internet
	}
	if c.Timeouts.VPNReady <= 0 {
		c.Timeouts.VPNReady = def.Timeouts.VPNReady
	}
	if c.Timeouts.Probe <= 0 {
		c.Timeouts.Probe = def.Timeouts.Probe
	}
	if c.Timeouts.PollInterval <= 0 {
		c.Timeouts.PollInterval = def.Timeouts.PollInterval
	}
}

// Validate verifies that configuration values are usable.
func (c *Config) Validate() error {
	if c.WANInterface == "" {
		return errors.New("wan_interface is required")
	}
	if c.APInterface == "" {
		return errors.New("ap_interface is required")
	}
	if c.WANInterface == c.APInterface {
		return fmt.Errorf("wan_interface and ap_interface must differ (both %s)", c.WANInterface)
	}
	if c.VenueProfile == "" || c.APProfile == "" {
		return errors.New("venue_profile and ap_profile are required")
	}
	if c.VenueProfile == c.APProfile || c.VenueProfile == c.FallbackHotspot.Profile {
		return errors.New("profile names must be unique per role")
	}
	if _, err := netip.ParsePrefix(c.APSubnet); err != nil {
		return fmt.Errorf("ap_subnet: %w", err)
	}
	return nil
}
