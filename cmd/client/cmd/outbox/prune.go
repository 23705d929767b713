package outbox

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
)

var PruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete synced outbox entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		n, err := app.PruneOutbox(cmd.Context())
		if err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		cliutil.Success("removed %d synced entries", n)
		return nil
	},
}
