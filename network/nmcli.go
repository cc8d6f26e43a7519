// Package network drives NetworkManager through nmcli: it replaces WiFi
// profiles per role and waits for the WAN radio to associate.
package network

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/execx"
)

// Profile is a stored NetworkManager connection profile.
type Profile struct {
	Name   string
	UUID   uuid.UUID
	Type   string
	Device string
}

// DeviceState is the NetworkManager state of a network device.
type DeviceState struct {
	Code int
	Text string
}

// nmDeviceStateActivated is NM_DEVICE_STATE_ACTIVATED.
const nmDeviceStateActivated = 100

// Connected reports whether the device is fully associated and configured.
func (s DeviceState) Connected() bool {
	return s.Code == nmDeviceStateActivated
}

func (s DeviceState) String() string {
	if s.Text == "" {
		return strconv.Itoa(s.Code)
	}
	return fmt.Sprintf("%d (%s)", s.Code, s.Text)
}

// ProfileStore is the part of the network manager that owns profiles.
type ProfileStore interface {
	ActiveProfiles(ctx context.Context) ([]Profile, error)
	Profiles(ctx context.Context) ([]Profile, error)
	Down(ctx context.Context, p Profile) error
	Delete(ctx context.Context, p Profile) error
	AddWifi(ctx context.Context, p common.NetworkProfile) error
	Up(ctx context.Context, name, iface string) error
}

// DeviceStateSource reports device states.
type DeviceStateSource interface {
	DeviceState(ctx context.Context, iface string) (DeviceState, error)
}

// NMCLI talks to NetworkManager through the nmcli command.
type NMCLI struct {
	runner execx.Runner
	// ActivateWait bounds how long nmcli blocks on "connection up".
	ActivateWait time.Duration
}

// NewNMCLI creates an nmcli client.
func NewNMCLI(runner execx.Runner, activateWait time.Duration) *NMCLI {
	return &NMCLI{runner: runner, ActivateWait: activateWait}
}

const nmcliBin = "nmcli"

// ActiveProfiles lists the profiles that are currently active.
func (n *NMCLI) ActiveProfiles(ctx context.Context) ([]Profile, error) {
	out, err := n.runner.Output(ctx, nmcliBin, "-t", "-f", "NAME,UUID,TYPE,DEVICE", "connection", "show", "--active")
	if err != nil {
		return nil, fmt.Errorf("list active profiles: %w", err)
	}
	return parseProfiles(out)
}

// Profiles lists every stored profile.
func (n *NMCLI) Profiles(ctx context.Context) ([]Profile, error) {
	out, err := n.runner.Output(ctx, nmcliBin, "-t", "-f", "NAME,UUID,TYPE,DEVICE", "connection", "show")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return parseProfiles(out)
}

// Down deactivates a profile.
func (n *NMCLI) Down(ctx context.Context, p Profile) error {
	if err := n.runner.Run(ctx, nmcliBin, "connection", "down", "uuid", p.UUID.String()); err != nil {
		if isUnknownConnection(err) {
			return nil
		}
		return fmt.Errorf("bring down %s: %w", p.Name, err)
	}
	return nil
}

// Delete removes a stored profile. A profile that is already gone
// yields common.ErrProfileNotFound.
func (n *NMCLI) Delete(ctx context.Context, p Profile) error {
	if err := n.runner.Run(ctx, nmcliBin, "connection", "delete", "uuid", p.UUID.String()); err != nil {
		if isUnknownConnection(err) {
			return fmt.Errorf("%w: %s", common.ErrProfileNotFound, p.Name)
		}
		return fmt.Errorf("delete %s: %w", p.Name, err)
	}
	return nil
}

// AddWifi stores a WPA-PSK client profile bound to p.Interface.
func (n *NMCLI) AddWifi(ctx context.Context, p common.NetworkProfile) error {
	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", p.Interface,
		"con-name", p.Name,
		"ssid", p.SSID,
		"wifi-sec.key-mgmt", "wpa-psk",
		"wifi-sec.psk", p.Password,
		"connection.autoconnect", "yes",
		"connection.autoconnect-priority", strconv.Itoa(p.Priority),
	}
	if err := n.runner.Run(ctx, nmcliBin, args...); err != nil {
		return fmt.Errorf("add profile %s: %w", p.Name, err)
	}
	return nil
}

// Up activates a profile on iface and blocks until nmcli reports the outcome.
// When nmcli gives up waiting the error is a *common.TimeoutError; any other
// failure carries the tool's text.
func (n *NMCLI) Up(ctx context.Context, name, iface string) error {
	args := []string{}
	if n.ActivateWait > 0 {
		args = append(args, "--wait", strconv.Itoa(int(n.ActivateWait.Seconds())))
	}
	args = append(args, "connection", "up", "id", name)
	if iface != "" {
		args = append(args, "ifname", iface)
	}
	err := n.runner.Run(ctx, nmcliBin, args...)
	if err != nil && isActivationTimeout(err) {
		common.LogDebug("activate %s: %v", name, err)
		return &common.TimeoutError{What: "activate " + name, Budget: n.ActivateWait, Attempts: 1}
	}
	return err
}

// ProfileActive reports whether the named profile is active.
func (n *NMCLI) ProfileActive(ctx context.Context, name string) (bool, error) {
	active, err := n.ActiveProfiles(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range active {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// DeviceState returns the state of iface.
func (n *NMCLI) DeviceState(ctx context.Context, iface string) (DeviceState, error) {
	out, err := n.runner.Output(ctx, nmcliBin, "-g", "GENERAL.STATE", "device", "show", iface)
	if err != nil {
		return DeviceState{}, fmt.Errorf("device state of %s: %w", iface, err)
	}
	return parseDeviceState(out)
}

// DeviceAddress returns the first IPv4 address of iface without its prefix.
func (n *NMCLI) DeviceAddress(ctx context.Context, iface string) (string, error) {
	out, err := n.runner.Output(ctx, nmcliBin, "-g", "IP4.ADDRESS", "device", "show", iface)
	if err != nil {
		return "", fmt.Errorf("address of %s: %w", iface, err)
	}
	first := strings.TrimSpace(strings.Split(out, "|")[0])
	addr, _, _ := strings.Cut(first, "/")
	return addr, nil
}

// DeviceConnection returns the name of the profile active on iface.
func (n *NMCLI) DeviceConnection(ctx context.Context, iface string) (string, error) {
	out, err := n.runner.Output(ctx, nmcliBin, "-g", "GENERAL.CONNECTION", "device", "show", iface)
	if err != nil {
		return "", fmt.Errorf("connection of %s: %w", iface, err)
	}
	return unescapeTerse(out), nil
}

func isUnknownConnection(err error) bool {
	var cmdErr *execx.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Output)
	return strings.Contains(msg, "unknown connection") ||
		strings.Contains(msg, "no such connection") ||
		strings.Contains(msg, "not an active connection")
}

// isActivationTimeout matches nmcli's "Timeout expired (N seconds)", which
// means the link never came up rather than that it was refused.
func isActivationTimeout(err error) bool {
	var cmdErr *execx.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Output), "timeout expired")
}

// parseProfiles parses "nmcli -t -f NAME,UUID,TYPE,DEVICE" output.
func parseProfiles(out string) ([]Profile, error) {
	var profiles []Profile
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("unexpected nmcli line %q", line)
		}
		id, err := uuid.Parse(fields[1])
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", fields[0], err)
		}
		profiles = append(profiles, Profile{
			Name:   fields[0],
			UUID:   id,
			Type:   fields[2],
			Device: fields[3],
		})
	}
	return profiles, nil
}

// parseDeviceState parses "100 (connected)".
func parseDeviceState(out string) (DeviceState, error) {
	out = strings.TrimSpace(out)
	codeStr, rest, _ := strings.Cut(out, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return DeviceState{}, fmt.Errorf("unexpected device state %q", out)
	}
	text := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(rest), "("), ")")
	return DeviceState{Code: code, Text: text}, nil
}

// splitTerse splits a terse nmcli line on unescaped colons.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

func unescapeTerse(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\:`, ":").Replace(strings.TrimSpace(s))
}
