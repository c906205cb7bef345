// Package main is the entry point for the responder service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"responder/bootstrap"
	"responder/cmd"
)

// run initializes and starts the responder service, then blocks until
// a shutdown signal arrives.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Shutdown(shutdownCtx)
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
	return nil
}

func main() {
	// CLI mode: playbook catalog management without starting the service.
	if len(os.Args) > 1 && os.Args[1] == "playbooks" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		playbooksCmd := cmd.NewPlaybooksCmd()
		if err := playbooksCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
