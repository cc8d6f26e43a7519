// Package vpn manages the tunnel through the VPN vendor's command line
// client.
//
// The Manager keeps a small session state machine:
//
//	disconnected -> connecting -> connected
//	connecting   -> disconnected   (connect failed)
//	connected    -> disconnected   (disconnect)
//
// Reconnecting always passes through disconnected. Every state change is
// journaled and available from Manager.Transitions.
//
// # Connect policy
//
//  1. Make sure the daemon unit is running, starting it if needed, and
//     wait a bounded time for the client to answer.
//  2. Require a logged-in account. Without one the error is a
//     *common.VPNAuthError and nothing is retried.
//  3. Drop an existing tunnel.
//  4. Connect to the requested region. On failure make exactly one attempt
//     against the fallback region, then give up with a
//     *common.VPNConnectError.
//  5. Read back server, country and public address for the session.
package vpn
