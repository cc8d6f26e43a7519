// Package orchestrator runs the "configure location" sequence: join the
// venue WiFi, wait for the internet, bring up the VPN, and check that the
// access point still serves clients.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/fsmutil"
	"github.com/yllada/travel-router/verify"
)

// Run states.
const (
	StateIdle             = "idle"
	StateConnectingWAN    = "connecting_wan"
	StateAwaitingInternet = "awaiting_internet"
	StateConnectingVPN    = "connecting_vpn"
	StateVerifying        = "verifying"
	StateDone             = "done"
	StateFailed           = "failed"
)

// Run events.
const (
	EventStart      = "start"
	EventAssociated = "associated"
	EventOnline     = "online"
	EventTunneled   = "tunneled"
	EventVerified   = "verified"
	EventFail       = "fail"
)

// ProfileReplacer recreates a network profile.
type ProfileReplacer interface {
	Replace(ctx context.Context, p common.NetworkProfile) (common.ProfileHandle, error)
}

// AssociationWaiter blocks until the WAN radio is associated.
type AssociationWaiter interface {
	WaitForAssociation(ctx context.Context, iface string, timeout time.Duration) error
}

// InternetChecker probes internet reachability.
type InternetChecker interface {
	Wait(ctx context.Context, budget time.Duration, onTick func(uint)) (common.ConnectivityCheckResult, error)
	Probe(ctx context.Context, timeout time.Duration) common.ConnectivityCheckResult
}

// VPNConnector brings up the tunnel.
type VPNConnector interface {
	Connect(ctx context.Context, region string) (common.VPNSession, error)
	AllowSubnet(ctx context.Context, cidr string) error
}

// ConvergenceVerifier checks and repairs the AP side.
type ConvergenceVerifier interface {
	Verify(ctx context.Context) verify.Result
}

// AddressSource reports the address a device obtained.
type AddressSource interface {
	DeviceAddress(ctx context.Context, iface string) (string, error)
}

// Reporter receives operator-facing progress.
type Reporter interface {
	Info(msg string)
	OK(msg string)
	Warn(msg string)
	Error(msg string)
	// Tick is called once per polling attempt.
	Tick(attempt uint)
	// Done ends a line of ticks.
	Done()
}

// Deps are the components a run drives.
type Deps struct {
	Replacer    ProfileReplacer
	Association AssociationWaiter
	Internet    InternetChecker
	VPN         VPNConnector
	Verifier    ConvergenceVerifier
	// Addresses is optional.
	Addresses AddressSource
	// Reporter is optional.
	Reporter Reporter
}

// Settings are the per-installation parameters of a run.
type Settings struct {
	WANInterface       string
	VenueProfile       string
	VenuePriority      int
	DefaultRegion      string
	APSubnet           string
	AssociationTimeout time.Duration
	InternetTimeout    time.Duration
	ProbeTimeout       time.Duration
}

// Summary describes how a run ended.
type Summary struct {
	RunID           uuid.UUID
	State           string
	FailedStep      string
	Region          string
	Country         string
	PublicAddress   string
	ObservedAddress string
	WANAddress      string
	InternetSkipped bool
	Warnings        []common.Warning
	Transitions     []string
	Duration        time.Duration
}

// Succeeded reports whether the run reached the done state.
func (s Summary) Succeeded() bool {
	return s.State == StateDone
}

// Orchestrator sequences one reconfiguration.
type Orchestrator struct {
	deps     Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Orchestrator {
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	return &Orchestrator{deps: deps, settings: settings}
}

// run is the state of one invocation.
type run struct {
	fsm     *fsm.FSM
	journal fsmutil.Journal
	summary Summary
}

func (o *Orchestrator) newRun() *run {
	r := &run{summary: Summary{RunID: uuid.New(), State: StateIdle}}
	r.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateConnectingWAN},
			{Name: EventAssociated, Src: []string{StateConnectingWAN}, Dst: StateAwaitingInternet},
			{Name: EventOnline, Src: []string{StateAwaitingInternet}, Dst: StateConnectingVPN},
			{Name: EventTunneled, Src: []string{StateConnectingVPN}, Dst: StateVerifying},
			{Name: EventVerified, Src: []string{StateVerifying}, Dst: StateDone},
			{Name: EventFail, Src: []string{StateConnectingWAN, StateConnectingVPN}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				r.journal.Record(ctx, e)
				r.summary.State = e.Dst
				common.LogDebug("run %s: %s -> %s", r.summary.RunID, e.Src, e.Dst)
			},
			"enter_" + StateFailed: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
				r.summary.FailedStep = e.Src
				return nil
			}),
		},
	)
	return r
}

func (r *run) fire(ctx context.Context, event string) error {
	if err := r.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("run %s: event %s in state %s: %w", r.summary.RunID, event, r.fsm.Current(), err)
	}
	return nil
}

func (r *run) warn(rep Reporter, kind common.WarningKind, msg string) {
	r.summary.Warnings = append(r.summary.Warnings, common.Warning{Kind: kind, Message: msg})
	rep.Warn(msg)
}

// Run applies req. Invalid input is rejected before anything changes. A
// fatal step leaves the system as it is and returns a *common.StepError;
// warnings never fail the run.
func (o *Orchestrator) Run(ctx context.Context, req common.LocationConfigRequest) (Summary, error) {
	start := time.Now()
	r := o.newRun()
	rep := o.deps.Reporter
	finish := func(err error) (Summary, error) {
		r.summary.Transitions = r.journal.Entries()
		r.summary.Duration = time.Since(start)
		return r.summary, err
	}

	if err := req.Validate(); err != nil {
		rep.Error(err.Error())
		return finish(err)
	}
	region := req.Region(o.settings.DefaultRegion)
	common.LogInfo("Run %s: ssid=%q region=%s", r.summary.RunID, req.SSID, region)

	// WAN
	if err := r.fire(ctx, EventStart); err != nil {
		return finish(err)
	}
	rep.Info(fmt.Sprintf("Replacing venue profile for %q on %s", req.SSID, o.settings.WANInterface))
	handle, err := o.deps.Replacer.Replace(ctx, common.NetworkProfile{
		Role:      common.RoleVenueNetwork,
		Name:      o.settings.VenueProfile,
		Interface: o.settings.WANInterface,
		Priority:  o.settings.VenuePriority,
		SSID:      req.SSID,
		Password:  req.Password,
		Activate:  true,
	})
	if err != nil {
		return finish(o.fail(ctx, r, err))
	}
	rep.OK(fmt.Sprintf("Profile %s created (%s)", handle.Name, handle.UUID))

	rep.Info(fmt.Sprintf("Waiting for %s to associate", o.settings.WANInterface))
	err = o.deps.Association.WaitForAssociation(ctx, o.settings.WANInterface, o.settings.AssociationTimeout)
	rep.Done()
	if err != nil {
		return finish(o.fail(ctx, r, err))
	}
	if o.deps.Addresses != nil {
		if addr, err := o.deps.Addresses.DeviceAddress(ctx, o.settings.WANInterface); err == nil {
			r.summary.WANAddress = addr
		}
	}
	rep.OK(fmt.Sprintf("%s associated %s", o.settings.WANInterface, r.summary.WANAddress))
	if err := r.fire(ctx, EventAssociated); err != nil {
		return finish(err)
	}

	// Internet
	rep.Info("Checking internet access")
	res, err := o.deps.Internet.Wait(ctx, o.settings.InternetTimeout, rep.Tick)
	rep.Done()
	switch {
	case ctx.Err() != nil:
		return finish(ctx.Err())
	case res.Skipped:
		r.summary.InternetSkipped = true
		rep.Info("Kill switch is on, internet check skipped")
	case err != nil:
		r.warn(rep, common.DegradedInternetWarning,
			fmt.Sprintf("no internet after %s, continuing (captive portal or slow DHCP?)", o.settings.InternetTimeout))
	default:
		rep.OK("Internet reachable")
	}
	if err := r.fire(ctx, EventOnline); err != nil {
		return finish(err)
	}

	// VPN
	if o.settings.APSubnet != "" {
		if err := o.deps.VPN.AllowSubnet(ctx, o.settings.APSubnet); err != nil {
			r.warn(rep, common.AllowlistWarning, fmt.Sprintf("could not allowlist %s: %v", o.settings.APSubnet, err))
		}
	}
	rep.Info(fmt.Sprintf("Connecting VPN to %s", region))
	session, err := o.deps.VPN.Connect(ctx, region)
	if err != nil {
		return finish(o.fail(ctx, r, err))
	}
	r.summary.Region = session.Region
	r.summary.Country = session.Country
	r.summary.PublicAddress = session.PublicAddress
	if session.Region != region {
		rep.Warn(fmt.Sprintf("Region %s unavailable, connected to %s instead", region, session.Region))
	}
	rep.OK(fmt.Sprintf("VPN connected to %s", session.Region))

	if obs := o.deps.Internet.Probe(ctx, o.settings.ProbeTimeout); obs.Reachable {
		r.summary.ObservedAddress = obs.ObservedAddress
	}
	if err := r.fire(ctx, EventTunneled); err != nil {
		return finish(err)
	}

	// Verify
	result := o.deps.Verifier.Verify(ctx)
	for _, w := range result.Warnings {
		r.summary.Warnings = append(r.summary.Warnings, w)
		rep.Warn(w.Message)
	}
	if result.APOk && result.ForwardingOk {
		rep.OK("Access point and forwarding verified")
	}
	if err := r.fire(ctx, EventVerified); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// fail moves the run to failed and wraps err with the failing step.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) error {
	step := r.fsm.Current()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		common.LogWarn("Run %s interrupted during %s", r.summary.RunID, step)
	}
	o.deps.Reporter.Error(err.Error())
	// The fail event only exists from connecting_wan and connecting_vpn.
	if ferr := r.fire(ctx, EventFail); ferr != nil {
		common.LogDebug("%v", ferr)
		r.summary.FailedStep = step
	}
	return &common.StepError{Step: step, Err: err}
}

type nopReporter struct{}

func (nopReporter) Info(string)  {}
func (nopReporter) OK(string)    {}
func (nopReporter) Warn(string)  {}
func (nopReporter) Error(string) {}
func (nopReporter) Tick(uint)    {}
func (nopReporter) Done()        {}
