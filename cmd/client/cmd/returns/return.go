package returns

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	domain "posclient/internal/domain/returns"
)

var (
	refundMode string
	reason     string
)

var ReturnCmd = &cobra.Command{
	Use:   "return INVOICE ITEM=QTY...",
	Short: "Return part of a submitted invoice",
	Long: `return issues a credit note for the given quantities of a submitted invoice.
Quantities beyond what is still returnable are clipped. With --refund-mode the
returned amount is paid back through that mode of payment.`,
	Example: `  posclient return ACC-SINV-0001 SKU-1=2 SKU-7=1 --refund-mode Cash`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		qty, err := cliutil.ParseAmounts(args[1:])
		if err != nil {
			return err
		}

		res, err := app.SubmitReturn(cmd.Context(), domain.Request{
			InvoiceName: args[0],
			Quantities:  qty,
			Reason:      reason,
			RefundMode:  refundMode,
		})
		if res != nil && cliutil.JSONOutput {
			if printErr := cliutil.PrintJSON(res); printErr != nil {
				return printErr
			}
		}
		if err != nil {
			if res != nil {
				cliutil.Warn("credit note %s was submitted", res.CreditNoteName)
			}
			return fmt.Errorf("submit return: %w", err)
		}
		if cliutil.JSONOutput {
			return nil
		}

		cliutil.Success("credit note %s submitted, total %s", res.CreditNoteName, res.Total)
		for _, l := range res.Lines {
			fmt.Printf("  %-16s qty %s x %s = %s\n", l.ItemCode, l.Qty, l.Rate, l.Amount)
		}
		if res.RefundCreated {
			cliutil.Success("refund %s created", res.RefundName)
		}
		return nil
	},
}

func init() {
	ReturnCmd.Flags().StringVar(&refundMode, "refund-mode", "", "mode of payment for the refund")
	ReturnCmd.Flags().StringVar(&reason, "reason", "", "return reason")
}
