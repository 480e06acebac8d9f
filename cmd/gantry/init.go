package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/memory"
	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/state"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Gantry project",
	Long: `Initialize a directory for use with Gantry.

This command sets up everything needed to dispatch work:
  - Creates the .gantry directory structure
  - Writes the default capability registry (edit it to match your team)
  - Creates the state and memory databases
  - Writes a .gantry.yaml config template

The directory argument is optional and defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Gantry in %s...\n\n", absPath)

	gantryDir := filepath.Join(absPath, ".gantry")
	if _, err := os.Stat(gantryDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	if err := os.MkdirAll(filepath.Join(gantryDir, "logs"), 0755); err != nil {
		return fmt.Errorf("creating .gantry directory: %w", err)
	}
	printStatus("✓", "Created .gantry directory structure", color.FgGreen)

	registryPath := registry.DefaultPath(absPath)
	if err := registry.WriteDefault(registryPath); err != nil {
		if !initForce {
			return fmt.Errorf("writing registry: %w", err)
		}
		printStatus("⚠", "Registry already exists, keeping it", color.FgYellow)
	} else {
		printStatus("✓", "Wrote default capability registry", color.FgGreen)
	}

	// Validate whatever registry is in place.
	if _, err := registry.LoadFile(registryPath); err != nil {
		return fmt.Errorf("validating registry: %w", err)
	}

	db, err := state.Open(state.ProjectDBPath(absPath))
	if err != nil {
		return fmt.Errorf("creating state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating state database: %w", err)
	}
	printStatus("✓", "Created state database", color.FgGreen)

	mem, err := memory.NewStore(memory.ProjectDBPath(absPath))
	if err != nil {
		return fmt.Errorf("creating memory database: %w", err)
	}
	defer mem.Close()
	if err := mem.Migrate(); err != nil {
		return fmt.Errorf("migrating memory database: %w", err)
	}
	printStatus("✓", "Created memory database", color.FgGreen)

	if err := createProjectConfig(absPath); err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	printStatus("✓", "Wrote .gantry.yaml template", color.FgGreen)

	fmt.Printf("\n%s Gantry initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .gantry/registry.yaml to match your capabilities")
	fmt.Println("  2. Create an epic:")
	fmt.Println("     gantry epic new \"your goal here\"")
	fmt.Println("  3. Add tasks and run:")
	fmt.Println("     gantry task add <epic-id> \"task title\" --capability database-architect")
	fmt.Println("     gantry run")

	return nil
}

// createProjectConfig writes the .gantry.yaml template, keeping an existing
// file untouched.
func createProjectConfig(root string) error {
	configPath := filepath.Join(root, ".gantry.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	template := `# Gantry project configuration
# Overrides defaults from ~/.config/gantry/config.yaml

# review:
#   max_iterations: 3
#   timeout: 10m

# dispatch:
#   max_per_domain: 3

# memory:
#   enabled: true

# hooks:
#   implement: ./scripts/implement.sh
#   verify: go test ./...
#   review: ./scripts/review.sh
`
	return os.WriteFile(configPath, []byte(template), 0644)
}

// printStatus prints a status line with color.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
