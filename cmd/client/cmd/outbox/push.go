package outbox

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
)

var PushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push pending outbox entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		report, err := app.PushOutbox(cmd.Context())
		if err != nil {
			return fmt.Errorf("push outbox: %w", err)
		}
		if cliutil.JSONOutput {
			return cliutil.PrintJSON(report)
		}

		if !report.HasChanges {
			fmt.Println("nothing to push")
			return nil
		}
		cliutil.Success("pushed %d, failed %d", report.Pushed, report.Failed)
		for _, c := range report.Conflicts {
			cliutil.Warn("conflict: %s %s: %s", c.EntityType, c.EntityLocalID, c.Message)
		}
		return nil
	},
}
