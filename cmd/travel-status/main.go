// Command travel-status prints the state of the travel router: WAN link,
// access point, forwarding, VPN tunnel and public address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yllada/travel-router/cli"
	"github.com/yllada/travel-router/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newCommand().ExecuteContext(ctx)
	stop()
	common.CloseLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
		watch      bool
	)
	cmd := &cobra.Command{
		Use:           common.StatusCommandName,
		Short:         "Show travel router status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.Setup(configPath, verbose)
			if err != nil {
				return err
			}
			c := cli.New(cfg, os.Stdout)
			defer c.Close()
			if watch {
				return c.Watch(cmd.Context())
			}
			return c.Status(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "configuration file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable verbose logging on stderr")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing")
	return cmd
}
