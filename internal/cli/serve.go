package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/app"
)

type ServeOptions struct {
	*RootOptions
	Listen string
	Record bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replication server",
		Long: `Run the replication server until interrupted.

Clients connect over websocket at /connect. /diagnostics reports the
stream and its sessions, /recordings serves saved recordings.

Environment overrides: CRAB_LISTEN, CRAB_TICK_RATE, CRAB_PACKET_RATE,
CRAB_RECORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if opts.Listen != "" {
				cfg.Listen = opts.Listen
			}
			if cmd.Flags().Changed("record") {
				cfg.Record.Enabled = opts.Record
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, app.Config{File: cfg, Console: cmd.OutOrStdout()})
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address, overrides the configuration")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the stream and save it on shutdown")
	return cmd
}
