package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mailgoal/mailgoal/cmd/mailgoal/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailgoal",
		Short:         "Operator tools for the MailGoal reminder service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(cmd.DispatchCmd())
	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.PreviewCmd())
	rootCmd.AddCommand(cmd.RemoteCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
