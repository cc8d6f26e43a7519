// Package systemd starts and inspects units, over D-Bus when the system bus
// is reachable and through systemctl otherwise.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/execx"
)

const (
	busName         = "org.freedesktop.systemd1"
	busPath         = dbus.ObjectPath("/org/freedesktop/systemd1")
	managerIface    = "org.freedesktop.systemd1.Manager"
	activeStateProp = "org.freedesktop.systemd1.Unit.ActiveState"
)

// UnitController is the small part of systemd the router needs.
type UnitController interface {
	ActiveState(ctx context.Context, unit string) (string, error)
	Start(ctx context.Context, unit string) error
}

// Running reports whether unit is active.
func Running(ctx context.Context, c UnitController, unit string) (bool, error) {
	state, err := c.ActiveState(ctx, unit)
	if err != nil {
		return false, err
	}
	return state == "active", nil
}

// New returns a D-Bus controller, or a systemctl one when the system bus
// cannot be reached. The returned close function is always safe to call.
func New(runner execx.Runner) (UnitController, func()) {
	bus, err := ConnectBus()
	if err != nil {
		common.LogDebug("system bus unavailable, using systemctl: %v", err)
		return NewSystemctl(runner), func() {}
	}
	return bus, func() { bus.Close() }
}

// Bus controls units through the systemd manager object.
type Bus struct {
	conn *dbus.Conn
}

// ConnectBus opens a private connection to the system bus.
func ConnectBus() (*Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &Bus{conn: conn}, nil
}

func (b *Bus) Close() error {
	return b.conn.Close()
}

func (b *Bus) ActiveState(ctx context.Context, unit string) (string, error) {
	var path dbus.ObjectPath
	err := b.conn.Object(busName, busPath).
		CallWithContext(ctx, managerIface+".LoadUnit", 0, unit).
		Store(&path)
	if err != nil {
		return "", fmt.Errorf("load unit %s: %w", unit, err)
	}

	v, err := b.conn.Object(busName, path).GetProperty(activeStateProp)
	if err != nil {
		return "", fmt.Errorf("active state of %s: %w", unit, err)
	}
	state, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("active state of %s: unexpected %s", unit, v.Signature())
	}
	return state, nil
}

func (b *Bus) Start(ctx context.Context, unit string) error {
	var job dbus.ObjectPath
	err := b.conn.Object(busName, busPath).
		CallWithContext(ctx, managerIface+".StartUnit", 0, unit, "replace").
		Store(&job)
	if err != nil {
		return fmt.Errorf("start %s: %w", unit, err)
	}
	common.LogDebug("started %s (job %s)", unit, job)
	return nil
}

// Systemctl controls units by running systemctl.
type Systemctl struct {
	runner execx.Runner
}

func NewSystemctl(runner execx.Runner) *Systemctl {
	return &Systemctl{runner: runner}
}

func (s *Systemctl) ActiveState(ctx context.Context, unit string) (string, error) {
	out, err := s.runner.Output(ctx, "systemctl", "is-active", unit)
	if err != nil {
		// is-active exits non-zero for every state but "active".
		var cmdErr *execx.CommandError
		if errors.As(err, &cmdErr) && isStateWord(cmdErr.Output) {
			return cmdErr.Output, nil
		}
		return "", fmt.Errorf("active state of %s: %w", unit, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *Systemctl) Start(ctx context.Context, unit string) error {
	if err := s.runner.Run(ctx, "systemctl", "start", unit); err != nil {
		return fmt.Errorf("start %s: %w", unit, err)
	}
	return nil
}

func isStateWord(s string) bool {
	switch strings.TrimSpace(s) {
	case "active", "inactive", "failed", "activating", "deactivating", "reloading", "unknown":
		return true
	}
	return false
}
