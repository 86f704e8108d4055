package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/store"
)

var showAllBranches bool

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's conversation",
	Long: `Display a session's messages. By default this is the live path of the
current branch; --all-branches shows every branch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := resolveSession(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}

		var messages []*store.Message
		err = st.View(cmd.Context(), func(t *store.Tx) error {
			var viewErr error
			if showAllBranches {
				messages, viewErr = t.AllMessages(sess.ID)
			} else {
				messages, viewErr = t.LivePath(sess.ID)
			}
			return viewErr
		})
		if err != nil {
			return err
		}

		title := sess.Title
		if title == "" {
			title = sess.ID
		}
		fmt.Println(sessionHeaderStyle.Render(title))
		fmt.Println(sessionMetaStyle.Render(fmt.Sprintf(
			"%s · %s · branch %s · %d messages · %d tokens",
			sess.Provider, sess.ID, sess.CurrentBranch, sess.MessageCount, sess.TokenCount)))

		for _, msg := range messages {
			label := msg.Role
			if showAllBranches {
				label = fmt.Sprintf("%s [%s #%d]", msg.Role, msg.BranchLabel, msg.SequenceNum)
			}
			switch msg.Role {
			case "user":
				fmt.Println(userMessageStyle.Render(label))
			default:
				fmt.Println(assistantMessageStyle.Render(label))
			}
			fmt.Println(messageContentStyle.Render(msg.Content))
		}
		return nil
	},
}

// resolveSession accepts a full id or an unambiguous prefix.
func resolveSession(ctx context.Context, st *store.Store, id string) (*store.Session, error) {
	sess, err := st.GetSession(ctx, id)
	if err == nil {
		return sess, nil
	}

	sessions, listErr := st.ListSessions(ctx, "")
	if listErr != nil {
		return nil, listErr
	}

	var match *store.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("session id %q is ambiguous", id)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return match, nil
}

func init() {
	showCmd.Flags().BoolVar(&showAllBranches, "all-branches", false, "Show messages from every branch")
	rootCmd.AddCommand(showCmd)
}
