// Package execx runs the system tools the router is driven by.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yllada/travel-router/common"
)

// Runner abstracts command execution so packages can be unit-tested without
// touching real system networking (nmcli, nordvpn, sysctl).
type Runner interface {
	// Run executes a command and discards its output.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// CommandError carries the tool's own output so callers can show it verbatim.
type CommandError struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	// Redact hides argument values that follow these flags in debug logs.
	Redact []string
}

// NewOSRunner returns a runner that never logs secrets passed after the
// given argument names.
func NewOSRunner(redact ...string) *OSRunner {
	return &OSRunner{Redact: redact}
}

func (r *OSRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

func (r *OSRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	common.LogDebug("exec: %s %s", name, strings.Join(r.redacted(args), " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &CommandError{Name: name, Args: r.redacted(args), Output: msg, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *OSRunner) redacted(args []string) []string {
	if len(r.Redact) == 0 {
		return args
	}
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if common.StringInSlice(out[i], r.Redact) {
			out[i+1] = "******"
			i++
		}
	}
	return out
}

// LookPath reports whether a command is available on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
