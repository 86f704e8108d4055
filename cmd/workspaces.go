package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// workspacesCmd represents the workspaces command
var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List workspaces",
	Long:  `List the workspaces sessions have been grouped under.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		workspaces, err := st.ListWorkspaces(cmd.Context())
		if err != nil {
			return err
		}
		if len(workspaces) == 0 {
			fmt.Println("No workspaces found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, ws := range workspaces {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				idStyle.Render(ws.ID[:8]),
				titleStyle.Render(ws.Name),
				ws.Provider,
				dateStyle.Render(ws.Path),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(workspacesCmd)
}
