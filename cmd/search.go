package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit     int
	searchDocuments bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over messages and documents",
	Long: `Search message content (or document content with --documents) using
SQLite FTS5 query syntax, e.g. 'error AND handler' or '"exact phrase"'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		hits, err := st.SearchMessages(cmd.Context(), args[0], searchLimit)
		if err != nil {
			return err
		}
		if searchDocuments {
			docHits, err := st.SearchDocuments(cmd.Context(), args[0], searchLimit)
			if err != nil {
				return err
			}
			hits = append(hits, docHits...)
		}

		if len(hits) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, h := range hits {
			ref := h.EntityID
			if h.SessionID != "" {
				ref = fmt.Sprintf("%s (session %s)", h.EntityID[:8], h.SessionID[:8])
			}
			fmt.Printf("%s %s\n  %s\n", headerStyle.Render(h.Kind), idStyle.Render(ref), h.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	searchCmd.Flags().BoolVar(&searchDocuments, "documents", false, "Also search documents")
	rootCmd.AddCommand(searchCmd)
}
