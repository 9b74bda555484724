// Package file loads and persists quarry's TOML configuration.
// Configuration lives in a single config.toml inside the quarry
// directory; secrets are plain values in that file, which is created
// with owner-only permissions.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/services"
)

const configFileName = "config.toml"

// Config is the full on-disk configuration.
type Config struct {
	// DataDir is where the SQLite database lives. Empty means the
	// default ~/.quarry/data.
	DataDir string `toml:"data_dir"`

	Verbose bool `toml:"verbose"`

	Embedding EmbeddingConfig `toml:"embedding"`
	Rerank    RerankConfig    `toml:"rerank"`
	Mail      MailConfig      `toml:"mail"`
	Sources   SourcesConfig   `toml:"sources"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// RerankConfig selects the reranking backend. An empty APIKey disables
// reranking.
type RerankConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// MailConfig tunes the mail sync windows.
type MailConfig struct {
	WindowDays  int `toml:"window_days"`
	HistoryDays int `toml:"history_days"`
}

// SourcesConfig carries per-source credentials. A source with no
// credentials is simply not synced.
type SourcesConfig struct {
	Slack   SlackConfig   `toml:"slack"`
	Notion  NotionConfig  `toml:"notion"`
	Gmail   GmailConfig   `toml:"gmail"`
	Tracker TrackerConfig `toml:"tracker"`
}

// SlackConfig configures the messaging source. Channels distinguishes
// three states: absent means every channel, a non-empty list means only
// those channels, and an explicitly empty list excludes the source.
type SlackConfig struct {
	Token    string    `toml:"token"`
	Channels *[]string `toml:"channels"`
}

// ChannelPolicy converts the raw channel list into the domain policy.
func (c SlackConfig) ChannelPolicy() domain.ChannelPolicy {
	if c.Channels == nil {
		return domain.ChannelPolicy{}
	}
	return domain.ChannelPolicy{Configured: true, Channels: *c.Channels}
}

type NotionConfig struct {
	Token string `toml:"token"`
}

type GmailConfig struct {
	AccessToken string `toml:"access_token"`
}

type TrackerConfig struct {
	Token string `toml:"token"`
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`
}

// MailServiceConfig maps the on-disk mail settings onto the sync
// service's config.
func (c Config) MailServiceConfig() services.MailConfig {
	return services.MailConfig{
		WindowDays:  c.Mail.WindowDays,
		HistoryDays: c.Mail.HistoryDays,
	}
}

// DefaultDir returns the quarry config/data directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".quarry"), nil
}

// Load reads the configuration from configDir, falling back to an
// empty config when the file does not exist yet.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(configDir, configFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to configDir, creating the directory
// if needed.
func Save(configDir string, cfg *Config) error {
	if configDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		configDir = dir
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(configDir, configFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
