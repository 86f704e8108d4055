package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/harvest"
)

var harvestProviders []string

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Collect sessions from providers into the store",
	Long: `Run a harvest pass: discover session sources for each provider,
extract them in parallel, and merge the results into the canonical store.

Re-running harvest over unchanged sources is a no-op. Sessions whose history
diverged since the last harvest get a new branch instead of being
overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		ids := harvestProviders
		if len(ids) == 0 {
			ids = cfg.Harvest.Providers
		}

		runner := harvest.NewRunner(st, reg, cfg.Harvest.MaxRetries)
		summary, err := runner.Run(cmd.Context(), ids)
		if err != nil {
			return err
		}

		fmt.Printf("Harvested %d sources: %d created, %d updated, %d branched, %d unchanged, %d failed\n",
			len(summary.Sources), summary.Created, summary.Updated,
			summary.Branched, summary.Skipped, summary.Failed)
		for _, src := range summary.Sources {
			if src.Err != nil {
				fmt.Printf("  failed %s (%s): %v\n", src.URI, src.Provider, src.Err)
			}
		}
		return nil
	},
}

func init() {
	harvestCmd.Flags().StringSliceVar(&harvestProviders, "provider", nil,
		"Providers to harvest (default: all configured)")
	rootCmd.AddCommand(harvestCmd)
}
