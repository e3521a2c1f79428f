package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "deskd",
		Short: "Supervisor for the containerized trading desk stack",
		Long: "deskd starts the desk's processes in dependency order behind readiness\n" +
			"gates, keeps them alive with bounded-backoff restarts and exposes an\n" +
			"HTTP control API.",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newShutdownCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newHistoryCmd())
	return root
}
