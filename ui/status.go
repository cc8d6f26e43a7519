package ui

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yllada/travel-router/common"
)

// StatusReport is a point-in-time view of the router.
type StatusReport struct {
	WANInterface string
	WANState     string
	WANProfile   string
	WANAddress   string

	APInterface string
	APProfile   string
	APActive    bool

	Forwarding bool

	VPN        common.VPNSession
	KillSwitch bool

	PublicAddress string
	// PublicSource names how PublicAddress was found ("http" or "stun").
	PublicSource string

	// Problems lists the queries that failed while gathering the report.
	Problems []string
	Taken    time.Time
}

// Healthy reports whether clients on the AP can reach the internet through
// the tunnel.
func (s StatusReport) Healthy() bool {
	return s.APActive && s.Forwarding && s.VPN.Status == common.VPNConnected
}

// RenderStatus formats a status report.
func RenderStatus(st Styles, rep StatusReport) string {
	var b strings.Builder

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tSTATE\tDETAIL")
	fmt.Fprintln(tw, "---------\t-----\t------")

	wanDetail := join(rep.WANInterface, rep.WANProfile, rep.WANAddress)
	fmt.Fprintf(tw, "WAN\t%s\t%s\n", orDash(rep.WANState), wanDetail)
	fmt.Fprintf(tw, "Access point\t%s\t%s\n", onOff(st, rep.APActive, "up", "down"), join(rep.APInterface, rep.APProfile))
	fmt.Fprintf(tw, "Forwarding\t%s\t%s\n", onOff(st, rep.Forwarding, "on", "off"), "net.ipv4.ip_forward")

	vpnState := rep.VPN.Status.String()
	switch rep.VPN.Status {
	case common.VPNConnected:
		vpnState = st.OK.Render(vpnState)
	case common.VPNConnecting:
		vpnState = st.Warn.Render(vpnState)
	default:
		vpnState = st.Error.Render(vpnState)
	}
	fmt.Fprintf(tw, "VPN\t%s\t%s\n", vpnState, join(rep.VPN.Country, rep.VPN.Server))
	fmt.Fprintf(tw, "Kill switch\t%s\t\n", onOff(st, rep.KillSwitch, "on", "off"))

	public := orDash(rep.PublicAddress)
	if rep.PublicSource != "" && rep.PublicAddress != "" {
		public += " " + st.Dim.Render("("+rep.PublicSource+")")
	}
	fmt.Fprintf(tw, "Public address\t%s\t\n", public)
	tw.Flush()

	if len(rep.Problems) > 0 {
		b.WriteString("\n" + st.Warn.Render("Problems") + "\n")
		for _, p := range rep.Problems {
			b.WriteString("  " + p + "\n")
		}
	}
	if !rep.Taken.IsZero() {
		b.WriteString("\n" + st.Dim.Render("as of "+rep.Taken.Format(time.TimeOnly)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(st Styles, on bool, yes, no string) string {
	if on {
		return st.OK.Render(yes)
	}
	return st.Error.Render(no)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "-"
	}
	return strings.Join(kept, "  ")
}
