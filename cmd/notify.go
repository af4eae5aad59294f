package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/visa-watch/internal/config"
	"github.com/example/visa-watch/internal/notify"
)

func newNotifyCmd() *cobra.Command {
	var title, message string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test message through every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return err
			}
			log := slog.New(slog.NewTextHandler(os.Stdout, nil))
			n, err := notify.New(cfg.Notify, log)
			if err != nil {
				return err
			}
			n.Notify(title, message)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "TEST", "message title")
	cmd.Flags().StringVar(&message, "message", "visawatch notification test", "message body")
	return cmd
}
