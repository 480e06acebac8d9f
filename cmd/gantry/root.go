package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/memory"
	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Dependency-gated task dispatch for specialist work",
	Long: `Gantry coordinates units of work (tasks) grouped into epics, holding
each task until the specialist capabilities it depends on have delivered,
then driving it through implementation, self-checks, and review to an
atomic commit.

Core capabilities:
- Orders tasks by capability blocking rules (schema before endpoints before pages)
- Bounds concurrent work per domain
- Runs every task through a review loop with a hard iteration cap
- Captures durable learnings into a project memory store`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(epicCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// projectRoot returns the directory the command operates on.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// openState opens the project state database, failing with guidance when
// the project is not initialized.
func openState(root string) (*state.DB, error) {
	path := state.ProjectDBPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no gantry project here, run 'gantry init' first")
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openMemory opens the project memory store.
func openMemory(root string) (*memory.Store, error) {
	s, err := memory.NewStore(memory.ProjectDBPath(root))
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// loadRegistry loads and validates the project capability registry.
func loadRegistry(root string) (*registry.Registry, error) {
	return registry.LoadFile(registry.DefaultPath(root))
}

// loadConfig loads the layered configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
