// Package common provides shared constants, types, and utilities
// used across the travel router tools.
package common

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
// These can be checked with errors.Is() for proper error handling.
var (
	// Input errors.
	ErrInvalidInput = errors.New("invalid input")

	// Wait errors.
	ErrTimeout = errors.New("operation timed out")

	// Network errors.
	ErrWANTimeout      = errors.New("wan interface did not associate")
	ErrCredentials     = errors.New("wan association failed")
	ErrProfileNotFound = errors.New("profile not found")

	// VPN errors.
	ErrVPNAuth          = errors.New("vpn account not logged in")
	ErrVPNConnect       = errors.New("vpn connection failed")
	ErrDaemonNotRunning = errors.New("vpn daemon not running")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")

	// Secret errors.
	ErrSecretNotFound = errors.New("secret not found")

	// Host errors.
	ErrRootRequired = errors.New("root privileges required")
	ErrToolMissing  = errors.New("required system tool not installed")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// FatalInputError reports a missing or empty required argument.
// It is raised before anything on the system is changed.
type FatalInputError struct {
	Field string
}

func (e *FatalInputError) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Field)
}

func (e *FatalInputError) Is(target error) bool { return target == ErrInvalidInput }

// TimeoutError is returned by every bounded wait when its budget elapses.
type TimeoutError struct {
	What     string
	Budget   time.Duration
	Attempts uint
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no success after %d attempts in %s", e.What, e.Attempts, e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// WANTimeoutError reports that the WAN interface never reached the connected state.
type WANTimeoutError struct {
	Interface string
	Budget    time.Duration
}

func (e *WANTimeoutError) Error() string {
	return fmt.Sprintf("%s did not reach connected state within %s", e.Interface, e.Budget)
}

func (e *WANTimeoutError) Is(target error) bool {
	return target == ErrWANTimeout || target == ErrTimeout
}

// CredentialError carries the network manager's own message when association fails.
type CredentialError struct {
	SSID   string
	Detail string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("could not join %q: %s", e.SSID, e.Detail)
}

func (e *CredentialError) Is(target error) bool { return target == ErrCredentials }

// VPNAuthError reports that the VPN daemon has no logged-in account.
type VPNAuthError struct {
	Detail string
}

func (e *VPNAuthError) Error() string {
	if e.Detail == "" {
		return ErrVPNAuth.Error()
	}
	return ErrVPNAuth.Error() + ": " + e.Detail
}

func (e *VPNAuthError) Is(target error) bool { return target == ErrVPNAuth }

// VPNConnectError reports that both the requested and the fallback region failed.
type VPNConnectError struct {
	Requested   string
	Fallback    string
	Err         error
	FallbackErr error
}

func (e *VPNConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed (%v); fallback to %s failed (%v)",
		e.Requested, e.Err, e.Fallback, e.FallbackErr)
}

func (e *VPNConnectError) Is(target error) bool { return target == ErrVPNConnect }

func (e *VPNConnectError) Unwrap() error { return e.FallbackErr }

// StepError names the orchestration step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal condition logged during a run.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return w.Kind.String() + ": " + w.Message
}

// WarningKind classifies non-fatal conditions.
type WarningKind int

const (
	DegradedInternetWarning WarningKind = iota
	ApDownWarning
	ForwardingResetWarning
	AllowlistWarning
)

// String returns a short label for the warning kind.
func (k WarningKind) String() string {
	switch k {
	case DegradedInternetWarning:
		return "degraded internet"
	case ApDownWarning:
		return "access point down"
	case ForwardingResetWarning:
		return "forwarding reset"
	case AllowlistWarning:
		return "allowlist"
	default:
		return "warning"
	}
}
