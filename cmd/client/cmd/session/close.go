package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	domain "posclient/internal/domain/session"
)

var CloseCmd = &cobra.Command{
	Use:     "close SESSION MODE=AMOUNT...",
	Short:   "Close a register session with the counted closing amounts",
	Example: `  posclient session close 6f1c... Cash=480.50 Card=120`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		amounts, err := cliutil.ParseAmounts(args[1:])
		if err != nil {
			return err
		}
		counts := make([]domain.ClosingCount, 0, len(amounts))
		for _, mode := range cliutil.SortedKeys(amounts) {
			counts = append(counts, domain.ClosingCount{ModeOfPayment: mode, Amount: amounts[mode]})
		}

		s, err := app.CloseSession(cmd.Context(), args[0], counts)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		return printSession(s)
	},
}
