package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
)

var ReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Adopt closings made on the backend for locally open sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		changed, err := app.ReconcileRemoteClosings(cmd.Context())
		if err != nil {
			return fmt.Errorf("reconcile sessions: %w", err)
		}
		reportChanged(changed, "reconcile")
		return nil
	},
}
