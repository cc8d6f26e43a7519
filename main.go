// Package main provides the configure-location command of the travel router.
//
// The router is a Raspberry Pi with two radios: one serves a local access
// point, the other joins whatever WiFi the venue offers, and all client
// traffic leaves through a VPN tunnel. configure-location points the WAN
// radio at a new venue network and brings the tunnel back up.
//
// Usage:
//
//	configure-location <ssid> <password> [--country <region>]
//	configure-location --status [--watch]
//	configure-location --list-countries
//	configure-location --hotspot [<ssid> <password>]
//	configure-location --set-secret <name>
//
// Environment:
//
//	NetworkManager (nmcli) and the NordVPN client must be installed.
//	Reconfiguring the network requires root.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yllada/travel-router/cli"
	"github.com/yllada/travel-router/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type options struct {
	configPath    string
	verbose       bool
	showVersion   bool
	country       string
	status        bool
	watch         bool
	listCountries bool
	hotspot       bool
	setSecret     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	common.CloseLogger()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return exitCode(cmd, err)
}

func exitCode(cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var uerr usageError
	if errors.As(err, &uerr) || errors.Is(err, common.ErrInvalidInput) {
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, cmd.UsageString())
		return exitUsage
	}
	if errors.Is(err, context.Canceled) {
		common.LogWarn("Interrupted; the system is left as it was at the signal")
	}
	return exitFatal
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   common.CommandName + " <ssid> <password>",
		Short: "Point the travel router at a new WiFi network and reconnect the VPN",
		Long: `configure-location replaces the venue WiFi profile on the WAN radio, waits for the
network to come up, reconnects the VPN and checks that the local access point
still serves clients.`,
		Example: `  sudo configure-location Hotel_Guest hunter2
  sudo configure-location "Cafe Free" s3cret --country Germany
  configure-location --status --watch
  configure-location --list-countries
  sudo configure-location --hotspot Pixel tethering`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			return validateArgs(opts, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), opts, args)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	fs := cmd.Flags()
	fs.StringVar(&opts.configPath, "config", "", "configuration file (default "+common.SystemConfigPath+" as root)")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable verbose logging on stderr")
	fs.BoolVar(&opts.showVersion, "version", false, "show version and exit")
	fs.StringVarP(&opts.country, "country", "c", "", "VPN region to connect to (default from config)")
	fs.BoolVar(&opts.status, "status", false, "show router status")
	fs.BoolVarP(&opts.watch, "watch", "w", false, "with --status, keep refreshing")
	fs.BoolVar(&opts.listCountries, "list-countries", false, "list VPN regions")
	fs.BoolVar(&opts.hotspot, "hotspot", false, "store the fallback hotspot profile")
	fs.StringVar(&opts.setSecret, "set-secret", "", "store (or, given an empty value, remove) a secret for keyring:<name> references")
	return cmd
}

func validateArgs(opts *options, args []string) error {
	modes := 0
	for _, on := range []bool{opts.status, opts.listCountries, opts.hotspot, opts.setSecret != "", opts.showVersion} {
		if on {
			modes++
		}
	}
	switch {
	case modes > 1:
		return usageError{errors.New("--status, --list-countries, --hotspot, --set-secret and --version are exclusive")}
	case opts.watch && !opts.status:
		return usageError{errors.New("--watch requires --status")}
	case opts.country != "" && modes > 0:
		return usageError{errors.New("--country only applies when configuring a location")}
	case opts.hotspot:
		if len(args) != 0 && len(args) != 2 {
			return usageError{errors.New("--hotspot takes either no arguments or <ssid> <password>")}
		}
	case modes > 0:
		if len(args) != 0 {
			return usageError{fmt.Errorf("unexpected arguments %q", args)}
		}
	case len(args) != 2:
		return usageError{fmt.Errorf("expected <ssid> <password>, got %d arguments", len(args))}
	default:
		req := common.LocationConfigRequest{SSID: args[0], Password: args[1], VPNRegion: opts.country}
		if err := req.Validate(); err != nil {
			return usageError{err}
		}
	}
	return nil
}

func runRoot(ctx context.Context, opts *options, args []string) error {
	if opts.showVersion {
		fmt.Printf("%s %s\n", common.CommandName, appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		return nil
	}

	cfg, err := cli.Setup(opts.configPath, opts.verbose)
	if err != nil {
		return err
	}
	common.LogInfo("Starting %s %s", common.CommandName, appVersion)

	if opts.setSecret != "" {
		return cli.SetSecret(opts.setSecret, os.Stdin, os.Stdout)
	}

	c := cli.New(cfg, os.Stdout)
	defer c.Close()

	switch {
	case opts.listCountries:
		return c.ListCountries(ctx)
	case opts.status && opts.watch:
		return c.Watch(ctx)
	case opts.status:
		return c.Status(ctx)
	case opts.hotspot:
		if err := cli.RequireRoot(); err != nil {
			return err
		}
		if err := c.Preflight(); err != nil {
			return err
		}
		var ssid, password string
		if len(args) == 2 {
			ssid, password = args[0], args[1]
		}
		return c.Hotspot(ctx, ssid, password)
	}

	if err := cli.RequireRoot(); err != nil {
		return err
	}
	if err := c.Preflight(); err != nil {
		return err
	}
	_, err = c.Configure(ctx, args[0], args[1], opts.country)
	return err
}
