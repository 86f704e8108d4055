package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nervosys/chasm/internal/syncer"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP server",
	Long: `Serve the sync API: version cursor, event deltas, full snapshots,
event publishing, and a live server-sent-events subscription.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine := syncer.New(st)
		server := syncer.NewServer(engine, cfg.Server.Heartbeat)

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		return server.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
