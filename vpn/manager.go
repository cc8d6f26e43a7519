package vpn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/fsmutil"
	"github.com/yllada/travel-router/poll"
	"github.com/yllada/travel-router/systemd"
)

// Session states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Session events.
const (
	EventConnect     = "connect"
	EventEstablished = "established"
	EventFail        = "fail"
	EventDisconnect  = "disconnect"
)

// Options configures a Manager.
type Options struct {
	// DaemonUnit is the systemd unit of the VPN daemon.
	DaemonUnit string
	// FallbackRegion is tried once when the requested region fails.
	// Empty means the daemon's best server.
	FallbackRegion string
	ReadyTimeout   time.Duration
	PollInterval   time.Duration
}

// Manager owns the VPN session for one invocation.
type Manager struct {
	cli   CLI
	units systemd.UnitController
	opts  Options

	mu      sync.Mutex
	fsm     *fsm.FSM
	journal fsmutil.Journal
	session common.VPNSession
}

// NewManager creates a manager. units may be nil when the daemon is not
// managed by systemd.
func NewManager(cli CLI, units systemd.UnitController, opts Options) *Manager {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = common.VPNReadyTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = common.PollInterval
	}
	m := &Manager{cli: cli, units: units, opts: opts}
	m.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: EventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: EventEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: EventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
			{Name: EventDisconnect, Src: []string{StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.journal.Record(ctx, e)
				common.LogDebug("vpn session %s -> %s (%s)", e.Src, e.Dst, e.Event)
			},
			"enter_" + StateConnected:    fsmutil.WrapEvent(m.actionEnterConnected),
			"enter_" + StateDisconnected: fsmutil.WrapEvent(m.actionEnterDisconnected),
		},
	)
	return m
}

// actionEnterConnected stores the session passed as the event argument.
func (m *Manager) actionEnterConnected(_ context.Context, e *fsm.Event) error {
	if len(e.Args) == 0 {
		return nil
	}
	s, ok := e.Args[0].(common.VPNSession)
	if !ok {
		return fmt.Errorf("unexpected session argument %T", e.Args[0])
	}
	s.Status = common.VPNConnected
	m.session = s
	return nil
}

func (m *Manager) actionEnterDisconnected(_ context.Context, _ *fsm.Event) error {
	m.session = common.VPNSession{Status: common.VPNDisconnected}
	return nil
}

// State returns the current session state.
func (m *Manager) State() string {
	return m.fsm.Current()
}

// Transitions returns every state change so far as "src->dst".
func (m *Manager) Transitions() []string {
	return m.journal.Entries()
}

// Session returns the last known session.
func (m *Manager) Session() common.VPNSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect establishes a tunnel to region, replacing any existing one.
func (m *Manager) Connect(ctx context.Context, region string) (common.VPNSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDaemon(ctx); err != nil {
		return m.session, err
	}

	loggedIn, err := m.cli.LoggedIn(ctx)
	if err != nil {
		return m.session, err
	}
	if !loggedIn {
		return m.session, &common.VPNAuthError{Detail: "not logged in"}
	}

	if err := m.syncLocked(ctx); err != nil {
		return m.session, err
	}
	if m.fsm.Current() == StateConnected {
		common.LogInfo("Dropping existing VPN session before reconnecting")
		if err := m.disconnectLocked(ctx); err != nil {
			return m.session, err
		}
	}

	if err := m.fsm.Event(ctx, EventConnect); err != nil {
		return m.session, err
	}

	target := region
	if err := m.cli.Connect(ctx, region); err != nil {
		fallback := m.fallbackLabel()
		common.LogWarn("VPN connect to %s failed: %v; trying %s", region, err, fallback)

		if ferr := m.cli.Connect(ctx, m.opts.FallbackRegion); ferr != nil {
			_ = m.fsm.Event(ctx, EventFail)
			return m.session, &common.VPNConnectError{
				Requested:   region,
				Fallback:    fallback,
				Err:         err,
				FallbackErr: ferr,
			}
		}
		target = fallback
	}

	session := common.VPNSession{Region: target}
	if st, err := m.cli.Status(ctx); err != nil {
		common.LogWarn("VPN connected but status unavailable: %v", err)
	} else {
		session.PublicAddress = st.IP
		session.Country = st.Country
		session.Server = st.Server
	}

	if err := m.fsm.Event(ctx, EventEstablished, session); err != nil {
		return m.session, err
	}
	common.LogInfo("VPN connected to %s (%s, %s)", session.Region, session.Server, session.PublicAddress)
	return m.session, nil
}

// Disconnect drops the tunnel if there is one.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.syncLocked(ctx); err != nil {
		return err
	}
	if m.fsm.Current() != StateConnected {
		return nil
	}
	return m.disconnectLocked(ctx)
}

func (m *Manager) disconnectLocked(ctx context.Context) error {
	if err := m.cli.Disconnect(ctx); err != nil {
		return fmt.Errorf("vpn disconnect: %w", err)
	}
	return m.fsm.Event(ctx, EventDisconnect)
}

// syncLocked adopts a tunnel the daemon already has, which happens when a
// previous run or the daemon's autoconnect left one up.
func (m *Manager) syncLocked(ctx context.Context) error {
	if m.fsm.Current() != StateDisconnected {
		return nil
	}
	st, err := m.cli.Status(ctx)
	if err != nil {
		return err
	}
	if st.Connected() {
		m.fsm.SetState(StateConnected)
		m.session = common.VPNSession{
			Region:        st.Country,
			Status:        common.VPNConnected,
			PublicAddress: st.IP,
			Country:       st.Country,
			Server:        st.Server,
		}
	}
	return nil
}

// Status reports what the daemon currently says, without changing anything.
func (m *Manager) Status(ctx context.Context) (common.VPNSession, error) {
	st, err := m.cli.Status(ctx)
	if err != nil {
		return common.VPNSession{Status: common.VPNDisconnected}, err
	}
	m.mu.Lock()
	region := m.session.Region
	m.mu.Unlock()
	if region == "" {
		region = st.Country
	}
	return common.VPNSession{
		Region:        region,
		Status:        st.VPNStatus(),
		PublicAddress: st.IP,
		Country:       st.Country,
		Server:        st.Server,
	}, nil
}

// Countries lists the regions the daemon accepts.
func (m *Manager) Countries(ctx context.Context) ([]string, error) {
	return m.cli.Countries(ctx)
}

// KillSwitchEnabled reports whether the daemon blocks traffic outside the tunnel.
func (m *Manager) KillSwitchEnabled(ctx context.Context) (bool, error) {
	s, err := m.cli.Settings(ctx)
	if err != nil {
		return false, err
	}
	return s.KillSwitch, nil
}

// AllowSubnet keeps cidr reachable while the kill switch is on. It is a
// no-op when the subnet is already allowlisted.
func (m *Manager) AllowSubnet(ctx context.Context, cidr string) error {
	s, err := m.cli.Settings(ctx)
	if err != nil {
		return err
	}
	if common.StringInSlice(cidr, s.AllowlistedSubnets) {
		common.LogDebug("%s already allowlisted", cidr)
		return nil
	}
	return m.cli.AllowlistSubnet(ctx, cidr)
}

func (m *Manager) fallbackLabel() string {
	if m.opts.FallbackRegion == "" {
		return common.BestRegion
	}
	return m.opts.FallbackRegion
}

func (m *Manager) ensureDaemon(ctx context.Context) error {
	if m.units != nil && m.opts.DaemonUnit != "" {
		running, err := systemd.Running(ctx, m.units, m.opts.DaemonUnit)
		if err != nil {
			common.LogDebug("daemon state unknown: %v", err)
		} else if !running {
			common.LogInfo("Starting %s", m.opts.DaemonUnit)
			if err := m.units.Start(ctx, m.opts.DaemonUnit); err != nil {
				return fmt.Errorf("%w: %v", common.ErrDaemonNotRunning, err)
			}
		}
	}

	var lastErr error
	_, err := poll.Until(ctx, poll.Options{
		What:     "vpn daemon",
		Interval: m.opts.PollInterval,
		Timeout:  m.opts.ReadyTimeout,
	}, func(ctx context.Context) (bool, error) {
		_, lastErr = m.cli.Status(ctx)
		return lastErr == nil, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr != nil {
			return fmt.Errorf("%w: %v", common.ErrDaemonNotRunning, lastErr)
		}
		return fmt.Errorf("%w: %v", common.ErrDaemonNotRunning, err)
	}
	return nil
}
