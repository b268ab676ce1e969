package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream security events from a running node",
		Long:  "Connects to a signalaircore node's admin API and streams security events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := client.WatchEvents(ctx, func(ev securityEvent) {
				out, fmtErr := formatEvent(ev, outputFormat)
				if fmtErr != nil {
					fmt.Println("format event:", fmtErr)
					return
				}
				fmt.Println(out)
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("watch events: %w", err)
			}

			return nil
		},
	}
}
