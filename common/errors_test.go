package common

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapError(t *testing.T) {
	wrapped := WrapError(ErrVPNConnect, "additional context")

	if !strings.Contains(wrapped.Error(), "additional context") {
		t.Error("WrapError should include additional context")
	}
	if !errors.Is(wrapped, ErrVPNConnect) {
		t.Error("WrapError should unwrap to the original error")
	}
	if WrapError(nil, "context") != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"input", &FatalInputError{Field: "ssid"}, ErrInvalidInput},
		{"timeout", &TimeoutError{What: "wait"}, ErrTimeout},
		{"wan timeout", &WANTimeoutError{Interface: "wlan1"}, ErrWANTimeout},
		{"wan timeout is a timeout", &WANTimeoutError{Interface: "wlan1"}, ErrTimeout},
		{"credentials", &CredentialError{SSID: "x"}, ErrCredentials},
		{"vpn auth", &VPNAuthError{}, ErrVPNAuth},
		{"vpn connect", &VPNConnectError{}, ErrVPNConnect},
		{"step", &StepError{Step: "connecting_wan", Err: &CredentialError{}}, ErrCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}
}
