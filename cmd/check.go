package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run exactly one poll iteration and report how it ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, true, dryRun)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			_, runErr := a.run(ctx)
			if a.jrn != nil {
				if last, ok, jerr := a.jrn.LastAttempt(ctx); jerr == nil && ok {
					a.log.Info("last recorded attempt",
						"date", last.Date.Format("2006-01-02"),
						"time", last.Time,
						"outcome", last.Outcome,
						"iteration", last.Iteration)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "never claim, only report found slots")
	return cmd
}
