package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cookie-crawler/internal/server"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the asynchronous analysis HTTP service",
		Long: `Starts the HTTP API and a pool of analysis workers. Analyses are
submitted with POST /v1/analyses and polled until they finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a, err := server.Build(cmd.Context(), cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build service: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from server.port)")
	return cmd
}
