package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client talks to a running signalaircore's admin API, initialized in
	// PersistentPreRunE.
	client *adminClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the admin API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for signalairctl.
var rootCmd = &cobra.Command{
	Use:   "signalairctl",
	Short: "CLI client for a SignalAir mesh node",
	Long:  "signalairctl talks to a signalaircore node's admin API to inspect peers, trust scores, and flood-guard state.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAdminClient(serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8181",
		"signalaircore admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(peersCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(unbanCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
