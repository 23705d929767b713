package outbox

import (
	"github.com/spf13/cobra"
)

var OutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and push entities created offline",
	Long: `Entities created while offline (customers, opening entries) are queued in
the outbox and pushed to the ERP backend in creation order.`,
}
