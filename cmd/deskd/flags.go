package main

import (
	"time"

	"github.com/spf13/cobra"
)

// APIFlags holds daemon connection flags shared by the control subcommands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.URL, "api-url", "http://127.0.0.1:9090/api", "control API base URL")
	cmd.Flags().DurationVar(&f.Timeout, "api-timeout", 10*time.Second, "control API request timeout")
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

// StopFlags holds flags for the stop command.
type StopFlags struct {
	API     APIFlags
	Cascade bool
}

// LogsFlags holds flags for the logs command.
type LogsFlags struct {
	API   APIFlags
	Lines int
}
