// Package common provides shared constants, types, and utilities
// used throughout the travel router tools.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: default interfaces, profile names, timeouts and paths
//   - Errors: sentinel errors and the typed errors of a reconfiguration run
//   - Types: network profiles, connectivity results and VPN sessions
//   - Logger: structured logging to a rotated file
//
// # Usage
//
//	import "github.com/yllada/travel-router/common"
//
//	common.LogInfo("Joining %s on %s", ssid, iface)
//
//	if errors.Is(err, common.ErrWANTimeout) {
//	    // venue network never associated
//	}
package common
