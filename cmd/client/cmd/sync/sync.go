package sync

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"posclient/cmd/client/cmd/cliutil"
	"posclient/internal/app/client"
	"posclient/internal/domain/snapshot"
)

var (
	sections    []string
	profile     string
	syncStatus  bool
	resetStats  bool
	diagnostics bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the ERP snapshot into local storage",
	Long: `sync fetches the bootstrap snapshot with every paged section and writes
it to local storage. --section persists only the named sections, which is
how a partial retry is done after a failed section.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cliutil.App(cmd)
		if err != nil {
			return err
		}

		switch {
		case syncStatus:
			return showSyncStatus(app)
		case resetStats:
			return resetSyncStats(app)
		case diagnostics:
			return showDiagnostics(cmd.Context(), app)
		}

		opts := client.SyncOptions{Profile: profile}
		for _, name := range sections {
			s, err := snapshot.ParseSection(name)
			if err != nil {
				return fmt.Errorf("%w: %s", err, name)
			}
			opts.Sections = append(opts.Sections, s)
		}

		return runSync(cmd.Context(), app, opts)
	},
}

func runSync(ctx context.Context, app *client.App, opts client.SyncOptions) error {
	result, err := app.Sync(ctx, opts)
	if result != nil && cliutil.JSONOutput {
		if printErr := cliutil.PrintJSON(result); printErr != nil {
			return printErr
		}
	} else if result != nil {
		printResult(result)
	}
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	cliutil.Success("sync finished in %v", result.Duration.Round(time.Millisecond))
	return nil
}

func printResult(result *client.SyncResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SECTION\tSTATUS\tFETCHED\tPERSISTED\tERROR\t\n")
	for _, s := range result.Sections {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t\n", s.Section, s.Status, s.Fetched, s.Persisted, s.Error)
	}
	w.Flush()
	fmt.Printf("\nfetched %d, persisted %d\n", result.Fetched, result.Persisted)
}

func showSyncStatus(app *client.App) error {
	stats := app.SyncStats()
	if cliutil.JSONOutput {
		return cliutil.PrintJSON(stats)
	}

	fmt.Printf("total syncs:      %d\n", stats.TotalSyncs)
	fmt.Printf("failed syncs:     %d\n", stats.TotalErrors)
	fmt.Printf("rows fetched:     %d\n", stats.TotalFetched)
	fmt.Printf("rows persisted:   %d\n", stats.TotalPersisted)
	fmt.Printf("average duration: %.2fs\n", stats.AvgSyncDuration)
	if !stats.LastSuccessful.IsZero() {
		fmt.Printf("last success:     %s\n", stats.LastSuccessful.Format(time.DateTime))
	}
	if !stats.LastFailed.IsZero() {
		fmt.Printf("last failure:     %s (%s)\n", stats.LastFailed.Format(time.DateTime), stats.LastError)
	}
	return nil
}

func resetSyncStats(app *client.App) error {
	app.ResetSyncStats()
	cliutil.Success("sync statistics reset")
	return nil
}

func showDiagnostics(ctx context.Context, app *client.App) error {
	diags, err := app.Diagnostics(ctx)
	if err != nil {
		return err
	}
	if cliutil.JSONOutput {
		return cliutil.PrintJSON(diags)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SECTION\tSTATUS\tFETCHED\tPERSISTED\tSTRATEGY\tTERMINATED BY\t\n")
	for _, d := range diags {
		persisted := "-"
		if d.PersistedCount != nil {
			persisted = fmt.Sprint(*d.PersistedCount)
		}
		strategy, reason := "-", "-"
		if d.StrategyDebug != nil {
			strategy, reason = string(d.StrategyDebug.Strategy), string(d.StrategyDebug.TerminatedBy)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t\n", d.Section, d.Status, d.FetchedCount, persisted, strategy, reason)
	}
	return w.Flush()
}

func init() {
	SyncCmd.Flags().StringSliceVar(&sections, "section", nil, "persist only these sections (repeatable)")
	SyncCmd.Flags().StringVar(&profile, "profile", "", "POS profile (defaults to pos_profile from config)")
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "show sync statistics")
	SyncCmd.Flags().BoolVar(&resetStats, "reset", false, "reset sync statistics")
	SyncCmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "show per-section diagnostics of the last sync")
}
