package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listWorkspace string

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	branchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvested sessions",
	Long:  `List all sessions in the canonical store, newest activity first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(cmd.Context(), listWorkspace)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found. Run 'chasm harvest' first.")
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, sess := range sessions {
			title := sess.Title
			if title == "" {
				title = "(untitled)"
			}
			branch := sess.CurrentBranch
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				idStyle.Render(sess.ID[:8]),
				titleStyle.Render(truncate(title, 48)),
				sess.Provider,
				countStyle.Render(fmt.Sprintf("%d msgs", sess.MessageCount)),
				branchStyle.Render(branch),
				dateStyle.Render(sess.UpdatedAt.Format("2006-01-02 15:04")),
			)
		}
		return w.Flush()
	},
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func init() {
	listCmd.Flags().StringVar(&listWorkspace, "workspace", "", "Filter by workspace id")
	rootCmd.AddCommand(listCmd)
}
