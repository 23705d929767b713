package outbox

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	"posclient/internal/app/client"
)

var (
	customerGroup string
	territory     string
)

var AddCustomerCmd = &cobra.Command{
	Use:   "add-customer NAME",
	Short: "Create a customer offline and queue it for push",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		entry, err := app.CreateCustomer(cmd.Context(), client.NewCustomerRequest{
			CustomerName:  args[0],
			CustomerGroup: customerGroup,
			Territory:     territory,
		})
		if err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		if cliutil.JSONOutput {
			return cliutil.PrintJSON(entry)
		}
		cliutil.Success("customer queued as %s", entry.EntityLocalID)
		return nil
	},
}

func init() {
	AddCustomerCmd.Flags().StringVar(&customerGroup, "group", "", "customer group")
	AddCustomerCmd.Flags().StringVar(&territory, "territory", "", "territory")
}
