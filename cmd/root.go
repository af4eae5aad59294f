package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var configPath string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "visawatch",
		Short: "Polls a visa appointment portal and reschedules onto the earliest open slot in a target window",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newCronCmd())
	root.AddCommand(newNotifyCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
