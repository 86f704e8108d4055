// Package cmd holds the chasm CLI.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/config"
	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/internal/store"
)

var (
	verbose    bool
	dbPath     string
	configPath string

	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chasm",
	Short: "Harvest, query, and sync AI chat sessions",
	Long: `chasm collects chat sessions from AI coding tools into one canonical,
queryable, versioned store.

Sessions from every supported provider land in a single SQLite database with
branching history, full-text search, checkpoints, and an append-only event
log that sync clients consume.

Quick Start:
  chasm harvest                 # Collect sessions from all providers
  chasm list                    # List harvested sessions
  chasm show <session-id>       # View one conversation
  chasm search "error handling" # Full-text search
  chasm serve                   # Run the sync server`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Storage.Path = dbPath
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the chasm database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// openStore opens the configured database, creating parent directories.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return store.Open(cfg.Storage.Path)
}

// buildRegistry registers the built-in provider adapters, honoring
// configured root overrides.
func buildRegistry() (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if err := reg.Register(provider.NewVSCodeAdapter(cfg.Harvest.Roots["vscode"])); err != nil {
		return nil, err
	}
	return reg, nil
}
