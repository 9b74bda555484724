// Package cli wires the cobra command tree. Services are built once
// from the config file and injected into the commands as package-level
// ports.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/adapters/driven/config/file"
	"github.com/custodia-labs/quarry/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/quarry/internal/adapters/driven/rerank/cohere"
	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/quarry/internal/connectors/gmail"
	"github.com/custodia-labs/quarry/internal/connectors/notion"
	"github.com/custodia-labs/quarry/internal/connectors/slack"
	"github.com/custodia-labs/quarry/internal/connectors/tracker"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/core/services"
	"github.com/custodia-labs/quarry/internal/logger"
)

var (
	version = "dev"

	configDir   string
	verboseFlag bool

	syncService   driving.SyncService
	searchService driving.SearchService

	store *sqlite.Store
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Local search across notes, messages, mail and issues",
	Long: `Quarry keeps a local, searchable index of your workspace notes,
team messages, email and issue tracker. Sync pulls changed documents
down; search answers queries against the local index without touching
the upstream services.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verboseFlag)
		// The version command needs no services.
		if cmd.Name() == "version" {
			return nil
		}
		return initServices()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if store != nil {
			store.Close() //nolint:errcheck
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.quarry)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose logging")
}

// Execute runs the CLI.
func Execute(v string) error {
	version = v
	return rootCmd.Execute()
}

// initServices builds the service graph from the config file. Already
// injected services (tests) are left alone.
func initServices() error {
	if syncService != nil && searchService != nil {
		return nil
	}
	cfg, err := file.Load(configDir)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logger.SetVerbose(true)
	}

	store, err = sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	embedder, err := openai.NewEmbeddingService(openai.Config{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("configure embeddings: %w", err)
	}

	var reranker driven.Reranker
	if cfg.Rerank.APIKey != "" {
		r, err := cohere.NewReranker(cohere.Config{
			APIKey: cfg.Rerank.APIKey,
			Model:  cfg.Rerank.Model,
		})
		if err != nil {
			return fmt.Errorf("configure reranker: %w", err)
		}
		reranker = r
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}

	syncService = services.NewOrchestrator(
		store.DocumentStore(), store.CursorStore(), embedder,
		sources, cfg.Sources.Slack.ChannelPolicy(), cfg.MailServiceConfig(),
	)
	searchService = services.NewSearchEngine(
		store.DocumentStore(), embedder, reranker,
		cfg.Sources.Slack.ChannelPolicy(), services.DefaultSearchConfig(),
	)
	return nil
}

// buildSources creates a connector for every source with credentials.
func buildSources(cfg *file.Config) (services.Sources, error) {
	var sources services.Sources
	if cfg.Sources.Notion.Token != "" {
		sources.Notes = notion.New(notion.Config{Token: cfg.Sources.Notion.Token})
	}
	if cfg.Sources.Slack.Token != "" {
		sources.Messages = slack.New(slack.Config{Token: cfg.Sources.Slack.Token})
	}
	if cfg.Sources.Gmail.AccessToken != "" {
		conn, err := gmail.New(context.Background(), gmail.Config{AccessToken: cfg.Sources.Gmail.AccessToken})
		if err != nil {
			return sources, fmt.Errorf("configure mail connector: %w", err)
		}
		sources.Mail = conn
	}
	if cfg.Sources.Tracker.Token != "" {
		conn, err := tracker.New(tracker.Config{
			Token: cfg.Sources.Tracker.Token,
			Owner: cfg.Sources.Tracker.Owner,
			Repo:  cfg.Sources.Tracker.Repo,
		})
		if err != nil {
			return sources, fmt.Errorf("configure tracker connector: %w", err)
		}
		sources.Tracker = conn
	}
	return sources, nil
}
