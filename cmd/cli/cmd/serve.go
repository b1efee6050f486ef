package cmd

import (
	"github.com/spf13/cobra"

	"billing-trust/api"
	"billing-trust/internal/logging"
)

var serveAddr string

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trust-score API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, store, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		server := api.NewServer(engine, "1.0.0", logging.Named("api"))
		return server.ListenAndServe(cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}
