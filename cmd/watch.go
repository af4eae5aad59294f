package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll continuously and reschedule onto the first qualifying slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, false, dryRun)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			_, err = a.run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "never claim, only report found slots")
	return cmd
}
