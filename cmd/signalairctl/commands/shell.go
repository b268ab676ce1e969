package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var shellCommands = []struct {
	name string
	desc string
}{
	{"peers", "List currently connected mesh peers"},
	{"stats", "Show mesh router statistics"},
	{"unban <peer>", "Clear a peer's flood-guard ban"},
	{"reset <peer>", "Clear a peer's flood-guard ban and trust score"},
	{"simulate", "Run a local in-process mesh and print peer counts"},
	{"monitor", "Stream security events (Ctrl+C to stop)"},
	{"version", "Print signalairctl build information"},
	{"help", "Show this help"},
	{"exit", "Leave the shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive signalairctl shell",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("signalairctl> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}

				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				switch line {
				case "exit", "quit":
					return nil
				case "help", "?":
					printShellHelp()
					continue
				}

				args := strings.Fields(line)
				rootCmd.SetArgs(args)
				if err := rootCmd.Execute(); err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
			}
		},
	}
}

func printShellBanner() {
	fmt.Println("signalairctl interactive shell. Type 'help' for commands, 'exit' to quit.")
}

func printShellHelp() {
	for _, c := range shellCommands {
		fmt.Printf("  %-16s %s\n", c.name, c.desc)
	}
}
