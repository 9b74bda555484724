package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source sync status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	statuses, err := syncService.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}

	cmd.Printf("%-10s %-8s %-20s %10s %10s\n", "SOURCE", "STATUS", "LAST SYNC", "ITEMS", "DOCS")
	for _, s := range statuses {
		lastSync := "never"
		if !s.LastSyncedAt.IsZero() {
			lastSync = s.LastSyncedAt.Local().Format("2006-01-02 15:04")
		}
		cmd.Printf("%-10s %-8s %-20s %10d %10d\n",
			s.Source, s.Status, lastSync, s.ItemsSynced, s.Documents)
	}
	return nil
}
