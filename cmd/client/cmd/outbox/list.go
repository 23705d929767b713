package outbox

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	domain "posclient/internal/domain/outbox"
)

var (
	listStatuses []string
	conflictOnly bool
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		filter := domain.ListFilter{ConflictOnly: conflictOnly}
		for _, s := range listStatuses {
			switch st := domain.Status(s); st {
			case domain.StatusPending, domain.StatusFailed, domain.StatusSynced:
				filter.Statuses = append(filter.Statuses, st)
			default:
				return fmt.Errorf("unknown status %q", s)
			}
		}

		entries, err := app.ListOutbox(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("list outbox: %w", err)
		}
		if cliutil.JSONOutput {
			return cliutil.PrintJSON(entries)
		}
		return printEntries(entries)
	},
}

func printEntries(entries []domain.Entry) error {
	if len(entries) == 0 {
		fmt.Println("outbox is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tENTITY\tSTATUS\tATTEMPTS\tREMOTE\tCREATED\tLAST ERROR\t\n")
	for _, e := range entries {
		status := string(e.Status)
		if e.Conflict {
			status += " (conflict)"
		}
		remote, lastErr := "-", ""
		if e.RemoteID != nil {
			remote = *e.RemoteID
		}
		if e.LastError != nil {
			lastErr = *e.LastError
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
			e.LocalID, e.EntityType, e.EntityLocalID, status, e.Attempts, remote,
			e.CreatedAt.Local().Format(time.DateTime), lastErr)
	}
	return w.Flush()
}

func init() {
	ListCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "filter by status: pending, failed, synced")
	ListCmd.Flags().BoolVar(&conflictOnly, "conflict", false, "show only entries flagged as duplicates")
}
