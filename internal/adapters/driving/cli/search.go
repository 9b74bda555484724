package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var (
	searchLimit    int
	searchJSON     bool
	searchSources  []string
	searchChannels []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the local index",
	Long: `Performs hybrid search across all indexed documents.
Combines keyword and semantic (vector) retrieval, fuses both rankings
and boosts recently updated documents.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default 5)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "restrict to sources (notes, messages, mail, tracker)")
	searchCmd.Flags().StringSliceVar(&searchChannels, "channel", nil, "restrict messaging results to channel IDs")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	filter := domain.SearchFilter{}
	for _, raw := range searchSources {
		source, err := domain.ParseSourceType(raw)
		if err != nil {
			return fmt.Errorf("source %q: %w", raw, err)
		}
		filter.Sources = append(filter.Sources, source)
	}
	if cmd.Flags().Changed("channel") {
		filter.Channels = domain.ChannelPolicy{Configured: true, Channels: searchChannels}
	}

	results := searchService.Search(cmd.Context(), args[0], searchLimit, filter)

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.RankedResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.RankedResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = snippet(r.Content, 60)
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Score)
		cmd.Printf("      Source: %s", r.Source)
		if !r.Timestamp.IsZero() {
			cmd.Printf("  Updated: %s", r.Timestamp.Format("2006-01-02"))
		}
		cmd.Println()
		if r.URL != "" {
			cmd.Printf("      %s\n", r.URL)
		}
		if s := snippet(r.Content, 120); s != "" {
			cmd.Printf("      %s\n", s)
		}
		cmd.Println()
	}
	return nil
}

func snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
