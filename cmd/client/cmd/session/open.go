package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	"posclient/internal/domain/erp"
	domain "posclient/internal/domain/session"
)

var (
	openProfile string
	openCompany string
	openUser    string
)

var OpenCmd = &cobra.Command{
	Use:   "open MODE=AMOUNT...",
	Short: "Open a register session with the counted opening float",
	Example: `  posclient session open Cash=100 Card=0 --company "ACME" --user cashier@acme.test`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		amounts, err := cliutil.ParseAmounts(args)
		if err != nil {
			return err
		}
		req := domain.OpenRequest{
			POSProfile: openProfile,
			Company:    openCompany,
			User:       openUser,
		}
		for _, mode := range cliutil.SortedKeys(amounts) {
			req.BalanceDetails = append(req.BalanceDetails, erp.BalanceDetail{
				ModeOfPayment: mode,
				OpeningAmount: amounts[mode],
			})
		}

		s, err := app.OpenSession(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		return printSession(s)
	},
}

func init() {
	OpenCmd.Flags().StringVar(&openProfile, "profile", "", "POS profile (defaults to pos_profile from config)")
	OpenCmd.Flags().StringVar(&openCompany, "company", "", "company")
	OpenCmd.Flags().StringVar(&openUser, "user", "", "cashier user")
}
