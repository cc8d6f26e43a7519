package network

import (
	"context"
	"errors"
	"time"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/poll"
)

// Waiter blocks until a WiFi device reports an association.
type Waiter struct {
	devices  DeviceStateSource
	interval time.Duration
	// OnTick is called once per polling attempt.
	OnTick func(attempt uint)
}

// NewWaiter creates a waiter polling devices every interval.
func NewWaiter(devices DeviceStateSource, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = common.PollInterval
	}
	return &Waiter{devices: devices, interval: interval}
}

// WaitForAssociation returns nil once iface is connected. When timeout
// elapses first it returns a *common.WANTimeoutError.
func (w *Waiter) WaitForAssociation(ctx context.Context, iface string, timeout time.Duration) error {
	var last DeviceState
	_, err := poll.Until(ctx, poll.Options{
		What:     iface + " association",
		Interval: w.interval,
		Timeout:  timeout,
		OnTick:   w.OnTick,
	}, func(ctx context.Context) (bool, error) {
		state, err := w.devices.DeviceState(ctx, iface)
		if err != nil {
			// The device can vanish briefly while the profile is swapped.
			common.LogDebug("device state %s: %v", iface, err)
			return false, nil
		}
		last = state
		return state.Connected(), nil
	})
	if err == nil {
		common.LogInfo("%s associated", iface)
		return nil
	}

	var te *common.TimeoutError
	if errors.As(err, &te) {
		common.LogWarn("%s not associated after %s (last state %s)", iface, timeout, last)
		return &common.WANTimeoutError{Interface: iface, Budget: timeout}
	}
	return err
}
