package vpn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/execx"
)

// DaemonStatus is what the VPN daemon reports about the tunnel.
type DaemonStatus struct {
	State   string
	Server  string
	Country string
	City    string
	IP      string
}

// Connected reports whether the daemon has an established tunnel.
func (s DaemonStatus) Connected() bool {
	return strings.EqualFold(s.State, "connected")
}

// VPNStatus maps the daemon state onto the session status.
func (s DaemonStatus) VPNStatus() common.VPNStatus {
	switch strings.ToLower(s.State) {
	case "connected":
		return common.VPNConnected
	case "connecting", "reconnecting":
		return common.VPNConnecting
	default:
		return common.VPNDisconnected
	}
}

// Settings is the subset of daemon settings the router depends on.
type Settings struct {
	KillSwitch         bool
	AllowlistedSubnets []string
}

// CLI is the VPN client command line.
type CLI interface {
	LoggedIn(ctx context.Context) (bool, error)
	Status(ctx context.Context) (DaemonStatus, error)
	// Connect joins target; an empty target asks for the best server.
	Connect(ctx context.Context, target string) error
	Disconnect(ctx context.Context) error
	Settings(ctx context.Context) (Settings, error)
	Countries(ctx context.Context) ([]string, error)
	AllowlistSubnet(ctx context.Context, cidr string) error
}

// NordVPN drives the nordvpn command.
type NordVPN struct {
	runner execx.Runner
	bin    string
}

// NewNordVPN creates a client running bin (default "nordvpn").
func NewNordVPN(runner execx.Runner, bin string) *NordVPN {
	if bin == "" {
		bin = common.DefaultVPNCommand
	}
	return &NordVPN{runner: runner, bin: bin}
}

func (n *NordVPN) LoggedIn(ctx context.Context) (bool, error) {
	out, err := n.runner.Output(ctx, n.bin, "account")
	if err != nil {
		var cmdErr *execx.CommandError
		if errors.As(err, &cmdErr) && notLoggedIn(cmdErr.Output) {
			return false, nil
		}
		return false, fmt.Errorf("query account: %w", err)
	}
	return !notLoggedIn(out), nil
}

func notLoggedIn(out string) bool {
	return strings.Contains(strings.ToLower(out), "not logged in")
}

func (n *NordVPN) Status(ctx context.Context) (DaemonStatus, error) {
	out, err := n.runner.Output(ctx, n.bin, "status")
	if err != nil {
		return DaemonStatus{}, fmt.Errorf("query status: %w", err)
	}
	return parseStatus(out), nil
}

func (n *NordVPN) Connect(ctx context.Context, target string) error {
	args := []string{"connect"}
	if target != "" {
		args = append(args, target)
	}
	return n.runner.Run(ctx, n.bin, args...)
}

func (n *NordVPN) Disconnect(ctx context.Context) error {
	return n.runner.Run(ctx, n.bin, "disconnect")
}

func (n *NordVPN) Settings(ctx context.Context) (Settings, error) {
	out, err := n.runner.Output(ctx, n.bin, "settings")
	if err != nil {
		return Settings{}, fmt.Errorf("query settings: %w", err)
	}
	return parseSettings(out), nil
}

func (n *NordVPN) Countries(ctx context.Context) ([]string, error) {
	out, err := n.runner.Output(ctx, n.bin, "countries")
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return parseCountries(out), nil
}

func (n *NordVPN) AllowlistSubnet(ctx context.Context, cidr string) error {
	err := n.runner.Run(ctx, n.bin, "allowlist", "add", "subnet", cidr)
	if err != nil {
		var cmdErr *execx.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(strings.ToLower(cmdErr.Output), "already") {
			return nil
		}
		return fmt.Errorf("allowlist %s: %w", cidr, err)
	}
	return nil
}

// cleanLine drops the spinner characters nordvpn prints before its output.
func cleanLine(line string) string {
	if i := strings.LastIndex(line, "\r"); i >= 0 {
		line = line[i+1:]
	}
	return strings.TrimLeft(strings.TrimSpace(line), `-\|/ `)
}

func parseStatus(out string) DaemonStatus {
	var st DaemonStatus
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(cleanLine(sc.Text()), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "status":
			st.State = value
		case "hostname", "current server":
			st.Server = value
		case "server":
			if st.Server == "" {
				st.Server = value
			}
		case "country":
			st.Country = value
		case "city":
			st.City = value
		case "ip", "your new ip", "server ip":
			if st.IP == "" {
				st.IP = value
			}
		}
	}
	return st
}

func parseSettings(out string) Settings {
	var (
		s         Settings
		inSubnets bool
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		raw := sc.Text()
		line := cleanLine(raw)
		lower := strings.ToLower(line)

		if inSubnets {
			if strings.HasPrefix(raw, "\t") || strings.HasPrefix(raw, " ") {
				if line != "" {
					s.AllowlistedSubnets = append(s.AllowlistedSubnets, line)
				}
				continue
			}
			inSubnets = false
		}

		switch {
		case strings.HasPrefix(lower, "kill switch:"):
			s.KillSwitch = strings.Contains(lower, "enabled")
		case strings.HasSuffix(lower, "subnets:"):
			inSubnets = true
		}
	}
	return s
}

func parseCountries(out string) []string {
	var countries []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := cleanLine(sc.Text())
		for _, f := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == '\t' || r == ' '
		}) {
			countries = append(countries, f)
		}
	}
	return countries
}
