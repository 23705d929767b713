package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
)

var PushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push closed sessions to the backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		changed, err := app.PushPendingClosings(cmd.Context())
		if err != nil {
			return fmt.Errorf("push closings: %w", err)
		}
		reportChanged(changed, "push")
		return nil
	},
}
