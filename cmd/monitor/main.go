package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evm-tx-monitor/internal/config"
)

// exit codes
const (
	exitError  = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(exitConfig)
		}
		os.Exit(exitError)
	}
}

// newRootCmd builds the command. Environment (and .env) values are loaded
// first and become the flag defaults, so explicit flags win.
func newRootCmd() *cobra.Command {
	cfg, loadErr := config.Load()

	cmd := &cobra.Command{
		Use:   "evm-tx-monitor",
		Short: "Watch an EVM chain's transaction stream in the terminal",
		Long: `evm-tx-monitor subscribes to a node over WebSocket JSON-RPC, decodes
incoming transactions and shows the most recent ones in a scrollable table.

Settings come from the environment (or a .env file) and can be overridden
with flags. Use --simulate to try it without a node.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if loadErr != nil {
				return loadErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(cmd.Flags())
	return cmd
}
