// Package common provides shared constants, types, and utilities
// used across the travel router tools.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "Travel Router"
	// CommandName is the name of the location reconfiguration command.
	CommandName = "configure-location"
	// StatusCommandName is the name of the standalone status command.
	StatusCommandName = "travel-status"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "travel-router"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".secrets"
	LogFileName         = "travel-router.log"
)

// System locations used when running as root on the router.
const (
	SystemConfigPath = "/etc/travel-router/config.yaml"
	SystemLogDir     = "/var/log/travel-router"
)

// Default timeouts and intervals.
const (
	// WANAssociationTimeout is how long to wait for the venue network to associate.
	WANAssociationTimeout = 30 * time.Second
	// InternetTimeout is how long to wait for internet reachability after association.
	InternetTimeout = 20 * time.Second
	// VPNReadyTimeout is the pause allowed for a freshly started VPN daemon.
	VPNReadyTimeout = 5 * time.Second
	// ProbeTimeout is the hard timeout of a single reachability probe.
	ProbeTimeout = 5 * time.Second
	// PollInterval is the fixed interval of every bounded polling loop.
	PollInterval = 1 * time.Second
	// StatusRefreshInterval is how often the watch view refreshes.
	StatusRefreshInterval = 5 * time.Second
)

// Defaults for the router layout.
const (
	DefaultWANInterface    = "wlan1"
	DefaultAPInterface     = "wlan0"
	DefaultAPSSID          = "TravelRouter"
	DefaultAPProfile       = "travel-ap"
	DefaultAPSubnet        = "192.168.4.0/24"
	DefaultVenueProfile    = "venue-wifi"
	DefaultHotspotProfile  = "fallback-hotspot"
	DefaultVPNRegion       = "United_States"
	DefaultVPNCommand      = "nordvpn"
	DefaultVPNDaemonUnit   = "nordvpnd.service"
	DefaultProbeEndpoint   = "https://ifconfig.me/ip"
	DefaultSTUNServer      = "stun.l.google.com:19302"
	DefaultVenuePriority   = 10
	DefaultHotspotPriority = -10
)

// BestRegion is the region label recorded when the VPN daemon picks the server.
const BestRegion = "best"
