package cli

import (
	"github.com/spf13/cobra"

	"github.com/alicommit-malp/rtun/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "rtun",
	Short: "rtun — embeddable reverse SSH tunnel (ssh -R) client",
	Long: `rtun connects outbound to a public SSH server, requests a remote port
forward, and proxies every inbound connection the server accepts back to a
local TCP service — the same mechanism as ssh -R, including the
localhost.run-style empty-bind-address convention hosted tunnel services
rely on.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}
