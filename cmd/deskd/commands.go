package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantfold/deskd/pkg/client"
)

func apiClient(f APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.URL, Timeout: f.Timeout})
}

func requireReachable(ctx context.Context, c *client.Client, url string) error {
	if !c.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'deskd serve'", url)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newStatusCmd() *cobra.Command {
	var f APIFlags
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stack snapshot, or one process with --name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := apiClient(f)
			if err := requireReachable(ctx, c, f.URL); err != nil {
				return err
			}
			if name != "" {
				p, err := c.ProcessStatus(ctx, name)
				if err != nil {
					return err
				}
				printJSON(p)
				return nil
			}
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "process name")
	addAPIFlags(cmd, &f)
	return cmd
}

func newStartCmd() *cobra.Command {
	var f APIFlags
	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Start a stopped or failed process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := apiClient(f)
			if err := requireReachable(ctx, c, f.URL); err != nil {
				return err
			}
			return c.Start(ctx, args[0])
		},
	}
	addAPIFlags(cmd, &f)
	return cmd
}

func newStopCmd() *cobra.Command {
	var f StopFlags
	cmd := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a process; dependents degrade to pending unless --cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := apiClient(f.API)
			if err := requireReachable(ctx, c, f.API.URL); err != nil {
				return err
			}
			return c.Stop(ctx, args[0], f.Cascade)
		},
	}
	cmd.Flags().BoolVar(&f.Cascade, "cascade", false, "also stop every transitive dependent first")
	addAPIFlags(cmd, &f.API)
	return cmd
}

func newRestartCmd() *cobra.Command {
	var f APIFlags
	cmd := &cobra.Command{
		Use:   "restart NAME",
		Short: "Restart a process with a fresh restart budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := apiClient(f)
			if err := requireReachable(ctx, c, f.URL); err != nil {
				return err
			}
			return c.Restart(ctx, args[0])
		},
	}
	addAPIFlags(cmd, &f)
	return cmd
}

func newShutdownCmd() *cobra.Command {
	var f APIFlags
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Wind the whole stack down in reverse dependency order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := apiClient(f)
			if err := requireReachable(ctx, c, f.URL); err != nil {
				return err
			}
			return c.Shutdown(ctx)
		},
	}
	addAPIFlags(cmd, &f)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var f LogsFlags
	var name string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled lifecycle transitions, optionally for one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := apiClient(f.API)
			if err := requireReachable(ctx, c, f.API.URL); err != nil {
				return err
			}
			rows, err := c.History(ctx, name, f.Lines)
			if err != nil {
				return err
			}
			printJSON(rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "process name")
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of transitions to show")
	addAPIFlags(cmd, &f.API)
	return cmd
}

func newLogsCmd() *cobra.Command {
	var f LogsFlags
	cmd := &cobra.Command{
		Use:   "logs NAME",
		Short: "Print recent captured output for a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := apiClient(f.API)
			if err := requireReachable(ctx, c, f.API.URL); err != nil {
				return err
			}
			lines, err := c.Logs(ctx, args[0], f.Lines)
			if err != nil {
				return err
			}
			for _, ln := range lines {
				cmd.Printf("%s %s\n", ln.At.Format("15:04:05.000"), ln.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 100, "number of lines to show")
	addAPIFlags(cmd, &f.API)
	return cmd
}
