package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func unbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban <peer>",
		Short: "Clear a peer's flood-guard ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			result, err := client.Unban(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("unban %s: %w", args[0], err)
			}

			out, err := formatAction(result, outputFormat)
			if err != nil {
				return fmt.Errorf("format result: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Clear a peer's flood-guard ban and trust score",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			result, err := client.Reset(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("reset %s: %w", args[0], err)
			}

			out, err := formatAction(result, outputFormat)
			if err != nil {
				return fmt.Errorf("format result: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
