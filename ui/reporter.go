package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/orchestrator"
)

// LineKind selects the marker and color of a progress line.
type LineKind int

const (
	LineInfo LineKind = iota
	LineOK
	LineWarn
	LineError
)

func (k LineKind) String() string {
	switch k {
	case LineOK:
		return "ok"
	case LineWarn:
		return "warn"
	case LineError:
		return "error"
	default:
		return "info"
	}
}

func (k LineKind) marker() string {
	switch k {
	case LineOK:
		return "✓"
	case LineWarn:
		return "!"
	case LineError:
		return "✗"
	default:
		return "•"
	}
}

// Reporter writes the progress log of a configure run.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	styles  Styles
	ticking bool
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w, styles: NewStyles(w)}
}

func (r *Reporter) Info(msg string)  { r.line(LineInfo, msg) }
func (r *Reporter) OK(msg string)    { r.line(LineOK, msg) }
func (r *Reporter) Warn(msg string)  { r.line(LineWarn, msg) }
func (r *Reporter) Error(msg string) { r.line(LineError, msg) }

// Tick prints one progress mark.
func (r *Reporter) Tick(attempt uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ticking {
		fmt.Fprint(r.w, "  ")
		r.ticking = true
	}
	fmt.Fprint(r.w, r.styles.Tick.Render("."))
}

// Done terminates a row of progress marks.
func (r *Reporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTicks()
}

func (r *Reporter) endTicks() {
	if r.ticking {
		fmt.Fprintln(r.w)
		r.ticking = false
	}
}

func (r *Reporter) line(kind LineKind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTicks()

	style := r.styles.Info
	switch kind {
	case LineOK:
		style = r.styles.OK
	case LineWarn:
		style = r.styles.Warn
	case LineError:
		style = r.styles.Error
	}
	fmt.Fprintf(r.w, "%s %s\n", style.Render(kind.marker()), msg)

	switch kind {
	case LineWarn:
		common.LogWarn("%s", msg)
	case LineError:
		common.LogError("%s", msg)
	default:
		common.LogInfo("%s", msg)
	}
}

// Summary prints the final block of a run.
func (r *Reporter) Summary(sum orchestrator.Summary, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTicks()
	fmt.Fprintln(r.w, RenderSummary(r.styles, sum, runErr))
}

// RenderSummary formats the outcome of a run as a bordered block.
func RenderSummary(st Styles, sum orchestrator.Summary, runErr error) string {
	var b strings.Builder

	title := st.OK.Render("Location configured")
	box := st.Box
	switch {
	case runErr != nil:
		title = st.Error.Render("Configuration failed")
		box = st.FailBox
	case len(sum.Warnings) > 0:
		title = st.Warn.Render("Location configured with warnings")
	}
	b.WriteString(title + "\n\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", st.Label.Render(label), value)
	}
	if runErr != nil {
		row("Failed step", sum.FailedStep)
		row("Error", runErr.Error())
	}
	row("WAN address", sum.WANAddress)
	row("VPN region", sum.Region)
	row("VPN country", sum.Country)
	row("VPN address", sum.PublicAddress)
	row("Observed address", sum.ObservedAddress)
	if sum.InternetSkipped {
		row("Internet check", "skipped (kill switch)")
	}
	row("Duration", formatDuration(sum.Duration))
	row("Run", sum.RunID.String())
	tw.Flush()

	if len(sum.Warnings) > 0 {
		b.WriteString("\n" + st.Warn.Render("Warnings") + "\n")
		for _, w := range sum.Warnings {
			b.WriteString("  " + w.String() + "\n")
		}
	}
	return box.Render(strings.TrimRight(b.String(), "\n"))
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
