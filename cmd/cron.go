package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// cronLog adapts slog to the scheduler's logger interface.
type cronLog struct {
	l *slog.Logger
}

func (c cronLog) Info(msg string, keysAndValues ...interface{}) {
	c.l.Info(msg, keysAndValues...)
}

func (c cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}

func newCronCmd() *cobra.Command {
	var schedule string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Run single-shot checks on a cron schedule",
		Long: "Runs one full check (sign in, poll, maybe claim, sign out) at each tick " +
			"of the given cron expression. A tick that fires while the previous check " +
			"is still running is skipped; checks never overlap.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := slog.New(slog.NewTextHandler(os.Stdout, nil))
			cl := cronLog{l: log}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cl)))
			_, err := c.AddFunc(schedule, func() {
				a, err := buildApp(ctx, true, dryRun)
				if err != nil {
					log.Error("check setup failed", "err", err)
					return
				}
				defer a.close(ctx)
				if _, err := a.run(ctx); err != nil {
					log.Error("check ended with exception", "err", err)
				}
			})
			if err != nil {
				return err
			}

			log.Info("cron watcher started", "schedule", schedule)
			c.Start()
			<-ctx.Done()
			// Let an in-flight check drain before exiting.
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "*/30 * * * *", "cron expression for check ticks")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "never claim, only report found slots")
	return cmd
}
