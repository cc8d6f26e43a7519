// Package cli implements the configure-location and travel-status
// commands on top of the router components.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/config"
	"github.com/yllada/travel-router/execx"
	"github.com/yllada/travel-router/forwarding"
	"github.com/yllada/travel-router/keyring"
	"github.com/yllada/travel-router/network"
	"github.com/yllada/travel-router/orchestrator"
	"github.com/yllada/travel-router/probe"
	"github.com/yllada/travel-router/systemd"
	"github.com/yllada/travel-router/ui"
	"github.com/yllada/travel-router/verify"
	"github.com/yllada/travel-router/vpn"
)

// CLI wires the router components for one invocation.
type CLI struct {
	cfg    *config.Config
	out    io.Writer
	nm     *network.NMCLI
	vpn    *vpn.Manager
	prober *probe.Prober
	stun   *probe.STUNObserver
	fwd    *forwarding.Sysctl
	close  func()
}

// New creates a CLI that drives the real system tools.
func New(cfg *config.Config, out io.Writer) *CLI {
	runner := execx.NewOSRunner("wifi-sec.psk")
	units, closeUnits := systemd.New(runner)
	c := newCLI(cfg, out, runner, units)
	c.close = closeUnits
	return c
}

func newCLI(cfg *config.Config, out io.Writer, runner execx.Runner, units systemd.UnitController) *CLI {
	mgr := vpn.NewManager(vpn.NewNordVPN(runner, cfg.VPN.Command), units, vpn.Options{
		DaemonUnit:     cfg.VPN.DaemonUnit,
		FallbackRegion: cfg.VPN.FallbackRegion,
		ReadyTimeout:   cfg.Timeouts.VPNReady,
		PollInterval:   cfg.Timeouts.PollInterval,
	})
	return &CLI{
		cfg: cfg,
		out: out,
		nm:  network.NewNMCLI(runner, cfg.Timeouts.WANAssociation),
		vpn: mgr,
		prober: probe.New(probe.Config{
			Endpoint:         cfg.Probe.Endpoint,
			KillSwitch:       mgr,
			SkipOnKillSwitch: cfg.VPN.SkipProbeOnKillSwitch,
			Interval:         cfg.Timeouts.PollInterval,
			ProbeTimeout:     cfg.Timeouts.Probe,
		}),
		stun:  &probe.STUNObserver{Servers: cfg.Probe.STUNServers, Timeout: cfg.Timeouts.Probe},
		fwd:   forwarding.NewSysctl(runner),
		close: func() {},
	}
}

// Close releases the system bus connection.
func (c *CLI) Close() {
	c.close()
}

// RequireRoot fails unless the process can reconfigure the network.
func RequireRoot() error {
	if !common.IsRoot() {
		return fmt.Errorf("%w: run with sudo", common.ErrRootRequired)
	}
	return nil
}

// Preflight checks that the tools a reconfiguration drives are installed.
func (c *CLI) Preflight() error {
	for _, tool := range []string{"nmcli", c.cfg.VPN.Command, "sysctl"} {
		if !execx.LookPath(tool) {
			return fmt.Errorf("%w: %s", common.ErrToolMissing, tool)
		}
	}
	return nil
}

// Configure points the router at a new venue network and reconnects the VPN.
func (c *CLI) Configure(ctx context.Context, ssid, password, region string) (orchestrator.Summary, error) {
	rep := ui.NewReporter(c.out)

	waiter := network.NewWaiter(c.nm, c.cfg.Timeouts.PollInterval)
	waiter.OnTick = rep.Tick

	apSubnet := ""
	if c.cfg.VPN.AllowlistAPSubnet {
		apSubnet = c.cfg.APSubnet
	}

	o := orchestrator.New(orchestrator.Deps{
		Replacer:    network.NewReplacer(c.nm),
		Association: waiter,
		Internet:    c.prober,
		VPN:         c.vpn,
		Verifier:    verify.New(c.nm, c.fwd, c.cfg.APProfile, c.cfg.APInterface),
		Addresses:   c.nm,
		Reporter:    rep,
	}, orchestrator.Settings{
		WANInterface:       c.cfg.WANInterface,
		VenueProfile:       c.cfg.VenueProfile,
		VenuePriority:      c.cfg.VenuePriority,
		DefaultRegion:      c.cfg.VPN.DefaultRegion,
		APSubnet:           apSubnet,
		AssociationTimeout: c.cfg.Timeouts.WANAssociation,
		InternetTimeout:    c.cfg.Timeouts.Internet,
		ProbeTimeout:       c.cfg.Timeouts.Probe,
	})

	sum, err := o.Run(ctx, common.LocationConfigRequest{SSID: ssid, Password: password, VPNRegion: region})
	if errors.Is(err, common.ErrInvalidInput) {
		return sum, err
	}
	rep.Summary(sum, err)
	common.LogInfo("Run %s finished in state %s after %s", sum.RunID, sum.State, sum.Duration)
	return sum, err
}

// GatherStatus queries every component. Failures are recorded in the
// report instead of aborting it.
func (c *CLI) GatherStatus(ctx context.Context) ui.StatusReport {
	rep := ui.StatusReport{
		WANInterface: c.cfg.WANInterface,
		APInterface:  c.cfg.APInterface,
		APProfile:    c.cfg.APProfile,
		Taken:        time.Now(),
	}
	problem := func(what string, err error) {
		common.LogDebug("status %s: %v", what, err)
		rep.Problems = append(rep.Problems, what+": "+err.Error())
	}

	if st, err := c.nm.DeviceState(ctx, c.cfg.WANInterface); err != nil {
		problem("wan state", err)
	} else {
		rep.WANState = st.Text
	}
	if name, err := c.nm.DeviceConnection(ctx, c.cfg.WANInterface); err == nil {
		rep.WANProfile = name
	}
	if addr, err := c.nm.DeviceAddress(ctx, c.cfg.WANInterface); err == nil {
		rep.WANAddress = addr
	}

	if active, err := c.nm.ProfileActive(ctx, c.cfg.APProfile); err != nil {
		problem("access point", err)
	} else {
		rep.APActive = active
	}

	if on, err := c.fwd.Enabled(ctx); err != nil {
		problem("forwarding", err)
	} else {
		rep.Forwarding = on
	}

	s, err := c.vpn.Status(ctx)
	if err != nil {
		problem("vpn", err)
	}
	rep.VPN = s
	if on, err := c.vpn.KillSwitchEnabled(ctx); err != nil {
		problem("kill switch", err)
	} else {
		rep.KillSwitch = on
	}

	if res := c.prober.Probe(ctx, c.cfg.Timeouts.Probe); res.Reachable && res.ObservedAddress != "" {
		rep.PublicAddress = res.ObservedAddress
		rep.PublicSource = "http"
	} else if addr, err := c.stun.Observe(ctx); err == nil {
		rep.PublicAddress = addr
		rep.PublicSource = "stun"
	} else {
		common.LogDebug("public address unknown: %v", err)
	}
	return rep
}

// Status prints a one-shot status report.
func (c *CLI) Status(ctx context.Context) error {
	rep := c.GatherStatus(ctx)
	fmt.Fprintln(c.out, ui.RenderStatus(ui.NewStyles(c.out), rep))
	return nil
}

// Watch shows the live status view, or a single report when stdout is
// not a terminal.
func (c *CLI) Watch(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		common.LogDebug("stdout is not a terminal, printing status once")
		return c.Status(ctx)
	}
	return ui.Watch(ctx, c.GatherStatus, common.StatusRefreshInterval)
}

// ListCountries prints the regions accepted by --country.
func (c *CLI) ListCountries(ctx context.Context) error {
	countries, err := c.vpn.Countries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list countries: %w", err)
	}
	if len(countries) == 0 {
		fmt.Fprintln(c.out, "No countries reported by the VPN client.")
		return nil
	}

	const perRow = 4
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for i, country := range countries {
		sep := "\t"
		if (i+1)%perRow == 0 || i == len(countries)-1 {
			sep = "\n"
		}
		fmt.Fprint(w, country+sep)
	}
	return w.Flush()
}

// Hotspot (re)creates the fallback hotspot profile. Empty arguments fall
// back to the configured hotspot. The profile is not activated; the
// network manager joins it when the venue network disappears.
func (c *CLI) Hotspot(ctx context.Context, ssid, password string) error {
	hs := c.cfg.FallbackHotspot
	if ssid == "" {
		ssid = hs.SSID
	}
	if password == "" {
		password = hs.Password
	}
	password, err := keyring.Resolve(password)
	if err != nil {
		return fmt.Errorf("hotspot password: %w", err)
	}

	handle, err := network.NewReplacer(c.nm).Replace(ctx, common.NetworkProfile{
		Role:      common.RoleFallbackHotspot,
		Name:      hs.Profile,
		Interface: c.cfg.WANInterface,
		Priority:  hs.Priority,
		SSID:      ssid,
		Password:  password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Fallback hotspot %q stored as %s (%s), priority %d\n",
		ssid, handle.Name, handle.UUID, hs.Priority)
	return nil
}

// SetSecret stores a secret that config files can reference as
// "keyring:<name>". The value is read from in without echo when in is a
// terminal. An empty value removes the secret.
func SetSecret(name string, in *os.File, out io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &common.FatalInputError{Field: "secret name"}
	}

	var value string
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprintf(out, "Value for %s: ", name)
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		value = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read secret: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	if value == "" {
		if err := keyring.Delete(name); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Removed %s%s\n", keyring.RefPrefix, name)
		return nil
	}
	if err := keyring.Store(name, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Stored; reference it as %s%s\n", keyring.RefPrefix, name)
	return nil
}
