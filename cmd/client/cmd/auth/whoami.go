package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
)

var WhoAmICmd = &cobra.Command{
	Use:   "whoami",
	Short: "Check the backend connection and show the authenticated user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		if err := app.CheckConnection(cmd.Context()); err != nil {
			return fmt.Errorf("backend unreachable: %w", err)
		}

		user, err := app.WhoAmI(cmd.Context())
		if err != nil {
			return fmt.Errorf("check credentials: %w", err)
		}
		fmt.Println(user)
		return nil
	},
}
