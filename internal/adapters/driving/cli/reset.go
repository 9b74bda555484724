package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset <source>",
	Short: "Delete a source's indexed documents and sync state",
	Long: `Removes every indexed document and the sync cursors for one source
(notes, messages, mail, tracker). The next sync for that source runs
as a first full sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	source, err := domain.ParseSourceType(args[0])
	if err != nil {
		return fmt.Errorf("source %q: %w", args[0], err)
	}

	if !resetForce {
		cmd.Printf("This deletes all indexed %s documents. Continue? [y/N] ", source)
		var answer string
		fmt.Fscanln(cmd.InOrStdin(), &answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := syncService.ResetSource(cmd.Context(), source); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	cmd.Printf("%s reset. Run 'quarry sync %s' to re-index.\n", source, source)
	return nil
}
