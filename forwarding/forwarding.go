// Package forwarding reads and sets kernel IPv4 forwarding, which carries
// AP client traffic to the WAN and the tunnel.
package forwarding

import (
	"context"
	"fmt"
	"strings"

	"github.com/yllada/travel-router/execx"
)

const ipForwardKey = "net.ipv4.ip_forward"

// Sysctl toggles forwarding through the sysctl command.
type Sysctl struct {
	runner execx.Runner
}

func NewSysctl(runner execx.Runner) *Sysctl {
	return &Sysctl{runner: runner}
}

// Enabled reports whether the kernel forwards IPv4 packets.
func (s *Sysctl) Enabled(ctx context.Context) (bool, error) {
	out, err := s.runner.Output(ctx, "sysctl", "-n", ipForwardKey)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", ipForwardKey, err)
	}
	switch strings.TrimSpace(out) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("read %s: unexpected value %q", ipForwardKey, out)
	}
}

// Enable turns forwarding on. It does not persist across reboots.
func (s *Sysctl) Enable(ctx context.Context) error {
	if err := s.runner.Run(ctx, "sysctl", "-w", ipForwardKey+"=1"); err != nil {
		return fmt.Errorf("enable forwarding: %w", err)
	}
	return nil
}
