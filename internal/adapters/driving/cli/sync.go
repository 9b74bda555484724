package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync [source]",
	Short: "Synchronise documents from sources",
	Long: `Pulls changed documents from the configured sources into the local
index. With a source argument (notes, messages, mail, tracker) only
that source is synchronised; otherwise all sources run concurrently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "re-walk the whole source instead of syncing from the cursor")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	if len(args) > 0 {
		source, err := domain.ParseSourceType(args[0])
		if err != nil {
			return fmt.Errorf("source %q: %w", args[0], err)
		}
		cmd.Printf("Synchronising %s...\n", source)

		run := syncService.SyncSource
		if syncFull {
			run = syncService.SyncSourceFull
		}
		report, err := run(cmd.Context(), source, progressPrinter(cmd))
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		printReport(cmd, report)
		return nil
	}

	if syncFull {
		return errors.New("--full requires a source argument")
	}
	cmd.Println("Synchronising all sources...")
	reports := syncService.SyncAll(cmd.Context())
	failed := 0
	for _, source := range domain.AllSources() {
		report, ok := reports[source]
		if !ok {
			continue
		}
		printReport(cmd, report)
		if !report.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d source(s) failed to sync", failed)
	}
	return nil
}

// progressPrinter streams phase changes to the terminal.
func progressPrinter(cmd *cobra.Command) domain.ProgressFunc {
	lastPhase := domain.SyncPhase("")
	return func(p domain.Progress) {
		if p.Phase == lastPhase {
			return
		}
		lastPhase = p.Phase
		cmd.Printf("  %s: %s\n", p.Source, p.Phase)
	}
}

func printReport(cmd *cobra.Command, report *domain.SyncReport) {
	status := "ok"
	if !report.Success {
		status = "FAILED"
	}
	cmd.Printf("%s: %s  synced=%d skipped=%d failed=%d\n",
		report.Source, status, report.ItemsSynced, report.ItemsSkipped, report.ItemsFailed)
	for _, itemErr := range report.Errors {
		cmd.Printf("    %s: %v\n", itemErr.SourceID, itemErr.Err)
	}
}
