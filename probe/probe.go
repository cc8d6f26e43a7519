// Package probe answers "is the internet reachable from here" and reports
// the public address the world sees.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/poll"
)

// KillSwitchSource reports whether the VPN kill switch blocks plain traffic.
type KillSwitchSource interface {
	KillSwitchEnabled(ctx context.Context) (bool, error)
}

// Config configures a Prober.
type Config struct {
	// Endpoint returns the caller's public address as plain text.
	Endpoint string
	// KillSwitch is consulted before waiting; nil disables the precheck.
	KillSwitch       KillSwitchSource
	SkipOnKillSwitch bool
	Interval         time.Duration
	// ProbeTimeout bounds a single request.
	ProbeTimeout time.Duration
	Client       *http.Client
}

// Prober issues connectivity checks against a single HTTP endpoint.
type Prober struct {
	cfg Config
}

// New creates a prober, filling unset fields with defaults.
func New(cfg Config) *Prober {
	if cfg.Endpoint == "" {
		cfg.Endpoint = common.DefaultProbeEndpoint
	}
	if cfg.Interval <= 0 {
		cfg.Interval = common.PollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = common.ProbeTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Prober{cfg: cfg}
}

// Probe performs one request with a hard timeout. Any failure is reported
// as unreachable, never as an error.
func (p *Prober) Probe(ctx context.Context, timeout time.Duration) common.ConnectivityCheckResult {
	start := time.Now()
	result := common.ConnectivityCheckResult{}

	if timeout <= 0 {
		timeout = p.cfg.ProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint, nil)
	if err != nil {
		common.LogDebug("probe request: %v", err)
		return finish(result, start)
	}
	req.Header.Set("User-Agent", "curl/8")
	req.Header.Set("Accept", "text/plain")

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		common.LogDebug("probe %s: %v", p.cfg.Endpoint, err)
		return finish(result, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		common.LogDebug("probe %s: status %d", p.cfg.Endpoint, resp.StatusCode)
		return finish(result, start)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	result.Reachable = true
	if addr, err := netip.ParseAddr(strings.TrimSpace(string(body))); err == nil {
		result.ObservedAddress = addr.String()
	}
	return finish(result, start)
}

func finish(r common.ConnectivityCheckResult, start time.Time) common.ConnectivityCheckResult {
	r.Elapsed = time.Since(start)
	return r
}

// Wait polls until the endpoint answers or budget elapses, calling onTick
// once per attempt. When the kill switch is on and skipping is enabled it
// returns a Skipped result without any network traffic. On budget
// exhaustion it returns the last result together with a *common.TimeoutError.
func (p *Prober) Wait(ctx context.Context, budget time.Duration, onTick func(uint)) (common.ConnectivityCheckResult, error) {
	if p.skipForKillSwitch(ctx) {
		common.LogInfo("Kill switch enabled, skipping internet check")
		return common.ConnectivityCheckResult{Skipped: true}, nil
	}

	var last common.ConnectivityCheckResult
	_, err := poll.Until(ctx, poll.Options{
		What:     "internet reachability",
		Interval: p.cfg.Interval,
		Timeout:  budget,
		OnTick:   onTick,
	}, func(ctx context.Context) (bool, error) {
		// ctx carries the budget deadline, so a probe never outlives it.
		last = p.Probe(ctx, p.cfg.ProbeTimeout)
		return last.Reachable, nil
	})
	if err != nil {
		return last, fmt.Errorf("wait for internet: %w", err)
	}
	return last, nil
}

func (p *Prober) skipForKillSwitch(ctx context.Context) bool {
	if !p.cfg.SkipOnKillSwitch || p.cfg.KillSwitch == nil {
		return false
	}
	on, err := p.cfg.KillSwitch.KillSwitchEnabled(ctx)
	if err != nil {
		common.LogDebug("kill switch state unknown: %v", err)
		return false
	}
	return on
}
