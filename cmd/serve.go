package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wdatoms/internal/observability"
	"github.com/xkilldash9x/wdatoms/internal/server"
)

// newServeCmd creates the `serve` command, which exposes sessions over HTTP
// until interrupted.
func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetServerAddr(addr)
			}

			logger := observability.GetLogger()
			components, err := newComponentFactory().Create(ctx, cfg, logger)
			if err != nil {
				return err
			}
			// Serve shuts the components down when ctx ends.
			return server.New(cfg.Server(), components, logger).ListenAndServe(ctx)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serveCmd
}
