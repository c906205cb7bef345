// Package cmd provides the responder command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"responder/config"
	"responder/playbook"
	"responder/storage"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

var (
	outputJSON bool
	noColor    bool
)

const defaultTimeout = 2 * time.Minute

// NewPlaybooksCmd creates the playbooks command tree: validate, import
// and list operate on the catalog without starting the service.
func NewPlaybooksCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playbooks",
		Short: "Manage the playbook catalog",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newListCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a playbook YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pb, err := playbook.LoadFile(args[0])
			if err != nil {
				errorColor.Printf("✗ %s is invalid\n", args[0])
				return err
			}

			successColor.Printf("✓ %s is valid\n", args[0])
			infoColor.Printf("  name: %s, version: %s, steps: %d, actions: %d\n",
				pb.Name, pb.Version, len(pb.Steps), pb.ActionCount())
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import a directory of playbook YAML files into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			playbooks, err := playbook.LoadDir(args[0], zap.NewNop().Sugar())
			if err != nil {
				return err
			}

			svc := playbook.NewService(store, nil, nil, false, zap.NewNop().Sugar())
			imported := 0
			for _, pb := range playbooks {
				if err := svc.Register(ctx, pb); err != nil {
					warningColor.Printf("! skipped %s: %v\n", pb.Name, err)
					continue
				}
				successColor.Printf("✓ imported %s\n", pb.Name)
				imported++
			}

			headerColor.Printf("Imported %d of %d playbooks\n", imported, len(playbooks))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List playbooks in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			playbooks, err := store.ListPlaybooks(ctx)
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(playbooks)
			}

			headerColor.Printf("%-38s %-30s %-10s %-8s %s\n", "ID", "NAME", "VERSION", "ENABLED", "STEPS")
			for _, pb := range playbooks {
				fmt.Printf("%-38s %-30s %-10s %-8t %d\n",
					pb.ID, pb.Name, pb.Version, pb.Enabled, len(pb.Steps))
			}
			infoColor.Printf("%d playbooks\n", len(playbooks))
			return nil
		},
	}
}

// openStore opens the configured playbook store for CLI use.
func openStore() (playbook.Store, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Storage.Backend == "memory" {
		return storage.NewMemoryStore(), func() {}, nil
	}

	db, err := storage.NewSQLite(cfg.Storage.SQLitePath, zap.NewNop().Sugar())
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewSQLitePlaybookStore(db, zap.NewNop().Sugar())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
