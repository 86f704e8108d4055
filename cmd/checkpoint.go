package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/checkpoint"
)

var checkpointDescription string

// checkpointCmd represents the checkpoint command group
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage session checkpoints",
	Long:  `Create and inspect immutable snapshots of a session's state.`,
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <session-id> <name>",
	Short: "Snapshot a session",
	Args:  cobra.ExactArgs(2),
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

		cp, err := checkpoint.Create(cmd.Context(), st, sess.ID, args[1], checkpointDescription)
		if err != nil {
			return err
		}
		fmt.Printf("Checkpoint %s created (%d messages)\n", cp.ID, cp.MessageCount)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List a session's checkpoints",
	Args:  cobra.ExactArgs(1),
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

		checkpoints, err := checkpoint.List(cmd.Context(), st, sess.ID)
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, cp := range checkpoints {
			desc := ""
			if cp.Description != nil {
				desc = *cp.Description
			}
			fmt.Fprintf(w, "%s\t%s\t%d msgs\t%s\t%s\n",
				idStyle.Render(cp.ID[:8]),
				titleStyle.Render(cp.Name),
				cp.MessageCount,
				dateStyle.Render(cp.CreatedAt.Format("2006-01-02 15:04")),
				desc,
			)
		}
		return w.Flush()
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <checkpoint-id>",
	Short: "Show a checkpoint's captured state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cp, state, err := checkpoint.Load(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}

		fmt.Println(sessionHeaderStyle.Render(cp.Name))
		fmt.Println(sessionMetaStyle.Render(fmt.Sprintf(
			"session %s · captured %s · %d messages · branches: %d",
			cp.SessionID, cp.CreatedAt.Format("2006-01-02 15:04"),
			cp.MessageCount, len(state.Branches))))

		for _, msg := range state.Messages {
			fmt.Printf("[%s #%d] %s: %s\n",
				msg.BranchLabel, msg.SequenceNum, msg.Role, truncate(msg.Content, 100))
		}
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().StringVar(&checkpointDescription, "description", "", "Checkpoint description")
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}
