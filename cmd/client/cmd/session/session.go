package session

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	domain "posclient/internal/domain/session"
)

var SessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open, close and reconcile register sessions",
}

func printSession(s *domain.Session) error {
	if cliutil.JSONOutput {
		return cliutil.PrintJSON(s)
	}

	fmt.Printf("session:  %s (%s)\n", s.LocalID, s.Status)
	fmt.Printf("profile:  %s\n", s.POSProfile)
	fmt.Printf("opening:  %s\n", s.OpeningEntryID)
	if s.ClosingEntryID != "" {
		fmt.Printf("closing:  %s\n", s.ClosingEntryID)
	}
	fmt.Printf("opened:   %s\n", s.OpenedAt.Local().Format(time.DateTime))
	if s.ClosedAt != nil {
		fmt.Printf("closed:   %s\n", s.ClosedAt.Local().Format(time.DateTime))
	}
	for _, b := range s.BalanceDetails {
		fmt.Printf("  %-12s opening %s closing %s\n", b.ModeOfPayment, b.OpeningAmount, b.ClosingAmount)
	}
	if s.PendingSync {
		cliutil.Warn("waiting to be pushed")
	}
	return nil
}

func reportChanged(changed bool, what string) {
	if changed {
		cliutil.Success("%s: changes applied", what)
		return
	}
	fmt.Printf("%s: nothing to do\n", what)
}
