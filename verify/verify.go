// Package verify checks that the access point and forwarding survived a
// reconfiguration and repairs them in place when they did not.
package verify

import (
	"context"
	"fmt"

	"github.com/yllada/travel-router/common"
)

// APController inspects and reactivates the access point profile.
type APController interface {
	ProfileActive(ctx context.Context, name string) (bool, error)
	Up(ctx context.Context, name, iface string) error
}

// ForwardingController inspects and enables IPv4 forwarding.
type ForwardingController interface {
	Enabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context) error
}

// Result is the outcome of one verification pass.
type Result struct {
	APOk               bool
	ForwardingOk       bool
	APRepaired         bool
	ForwardingRepaired bool
	Warnings           []common.Warning
}

// Verifier re-establishes the AP and forwarding after the WAN changed.
// It never fails the run; problems become warnings.
type Verifier struct {
	ap         APController
	forwarding ForwardingController
	apProfile  string
	apIface    string
}

func New(ap APController, fwd ForwardingController, apProfile, apIface string) *Verifier {
	return &Verifier{ap: ap, forwarding: fwd, apProfile: apProfile, apIface: apIface}
}

// Verify checks both conditions and repairs what is off. Running it on a
// healthy system changes nothing.
func (v *Verifier) Verify(ctx context.Context) Result {
	var r Result
	v.verifyAP(ctx, &r)
	v.verifyForwarding(ctx, &r)
	return r
}

func (v *Verifier) verifyAP(ctx context.Context, r *Result) {
	active, err := v.ap.ProfileActive(ctx, v.apProfile)
	if err != nil {
		r.warn(common.ApDownWarning, fmt.Sprintf("cannot read state of %s: %v", v.apProfile, err))
		return
	}
	if active {
		r.APOk = true
		return
	}

	common.LogWarn("Access point %s is down, reactivating", v.apProfile)
	if err := v.ap.Up(ctx, v.apProfile, v.apIface); err != nil {
		r.warn(common.ApDownWarning, fmt.Sprintf("%s down and reactivation failed: %v", v.apProfile, err))
		return
	}
	r.APOk = true
	r.APRepaired = true
	r.warn(common.ApDownWarning, fmt.Sprintf("%s was down and has been reactivated", v.apProfile))
}

func (v *Verifier) verifyForwarding(ctx context.Context, r *Result) {
	on, err := v.forwarding.Enabled(ctx)
	if err != nil {
		r.warn(common.ForwardingResetWarning, fmt.Sprintf("cannot read forwarding state: %v", err))
		return
	}
	if on {
		r.ForwardingOk = true
		return
	}

	common.LogWarn("IPv4 forwarding is off, enabling")
	if err := v.forwarding.Enable(ctx); err != nil {
		r.warn(common.ForwardingResetWarning, fmt.Sprintf("forwarding off and could not be enabled: %v", err))
		return
	}
	r.ForwardingOk = true
	r.ForwardingRepaired = true
	r.warn(common.ForwardingResetWarning, "IPv4 forwarding was off and has been re-enabled")
}

func (r *Result) warn(kind common.WarningKind, msg string) {
	common.LogWarn("%s: %s", kind, msg)
	r.Warnings = append(r.Warnings, common.Warning{Kind: kind, Message: msg})
}
