// Package main implements the drama CLI: a distributed workflow
// orchestrator with worker and server roles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:     "drama",
		Short:   "Distributed workflow orchestrator",
		Long:    `Drama executes user-defined workflows composed of a DAG of tasks on a pool of workers communicating through a durable message bus.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	var processes int
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Spawn concurrent workers attached to the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), processes)
		},
	}
	workerCmd.Flags().IntVar(&processes, "processes", 4, "Number of concurrent workers")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Deploy the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Submit a workflow described in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), args[0])
		},
	}

	rootCmd.AddCommand(workerCmd, serverCmd, runCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}
