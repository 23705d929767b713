package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync scheduler and the support API",
	Long: `serve runs snapshot sync, outbox push and session reconciliation on their
intervals and serves health, diagnostics, outbox and metrics endpoints
until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		fmt.Printf("support API on http://%s/api/v1/health\n", cfg.SupportAddress)
		return app.Run(ctx)
	},
}
