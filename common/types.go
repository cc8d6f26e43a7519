// Package common provides shared constants, types, and utilities
// used across the travel router tools.
package common

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the logical purpose of a network profile.
type Role int

const (
	RoleAccessPoint Role = iota
	RoleVenueNetwork
	RoleFallbackHotspot
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleAccessPoint:
		return "access point"
	case RoleVenueNetwork:
		return "venue network"
	case RoleFallbackHotspot:
		return "fallback hotspot"
	default:
		return "unknown"
	}
}

// NetworkProfile is the desired configuration of one network manager profile.
// Profiles are never edited in place; a change means delete and recreate.
type NetworkProfile struct {
	Role      Role
	Name      string
	Interface string
	Priority  int
	SSID      string
	Password  string
	// Activate brings the profile up right after creation.
	Activate bool
}

// ProfileHandle identifies a profile created by the replacer.
type ProfileHandle struct {
	Role      Role
	Name      string
	UUID      uuid.UUID
	Interface string
}

// ConnectivityCheckResult is the outcome of one reachability probe.
type ConnectivityCheckResult struct {
	Reachable bool
	// Skipped is set when the probe was not attempted because of the VPN kill switch.
	Skipped         bool
	ObservedAddress string
	Elapsed         time.Duration
}

// VPNStatus represents the state of the VPN session.
type VPNStatus int

const (
	VPNDisconnected VPNStatus = iota
	VPNConnecting
	VPNConnected
)

// String returns a human-readable status string.
func (s VPNStatus) String() string {
	switch s {
	case VPNDisconnected:
		return "Disconnected"
	case VPNConnecting:
		return "Connecting"
	case VPNConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// VPNSession is the VPN daemon's view of the tunnel. This tool never owns it,
// it only issues transitions and reads it back.
type VPNSession struct {
	Region        string
	Status        VPNStatus
	PublicAddress string
	Country       string
	Server        string
}

// LocationConfigRequest is the operator input for one reconfiguration run.
type LocationConfigRequest struct {
	SSID      string
	Password  string
	VPNRegion string
}

// Validate rejects empty required fields before anything is changed.
func (r LocationConfigRequest) Validate() error {
	if strings.TrimSpace(r.SSID) == "" {
		return &FatalInputError{Field: "ssid"}
	}
	if r.Password == "" {
		return &FatalInputError{Field: "password"}
	}
	return nil
}

// Region returns the requested VPN region, or fallback when none was given.
func (r LocationConfigRequest) Region(fallback string) string {
	if region := strings.TrimSpace(r.VPNRegion); region != "" {
		return region
	}
	return fallback
}
