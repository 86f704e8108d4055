package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/export"
)

var (
	exportFormat      string
	exportOutputDir   string
	exportAllBranches bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export sessions to file",
	Long: `Export sessions in jsonl, md, yaml, or json format.

With a session id only that session is exported; without one every session
in the store is. Files land in the output directory named by session id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		var ids []string
		if len(args) == 1 {
			sess, err := resolveSession(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			ids = []string{sess.ID}
		} else {
			sessions, err := st.ListSessions(cmd.Context(), "")
			if err != nil {
				return err
			}
			for _, sess := range sessions {
				ids = append(ids, sess.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("Nothing to export.")
			return nil
		}

		if err := os.MkdirAll(exportOutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}

		for _, id := range ids {
			view, err := export.Build(cmd.Context(), st, id, exportAllBranches)
			if err != nil {
				return err
			}

			path := filepath.Join(exportOutputDir, id+"."+exporter.Extension())
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := exporter.Export(view, f); err != nil {
				f.Close()
				return fmt.Errorf("export %s: %w", id, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Exported %s\n", path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (json, jsonl, md, yaml)")
	exportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", "exports", "Output directory")
	exportCmd.Flags().BoolVar(&exportAllBranches, "all-branches", false, "Include every branch")
	rootCmd.AddCommand(exportCmd)
}
