package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/pkg/models"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage the project memory store",
	Long: `The memory store holds durable, categorized facts captured from
completed tasks: pitfalls, conventions, and decisions. Entries are
append-only and survive across epics.`,
}

var (
	memoryAddTags  []string
	memoryAddTask  string
	memoryListCat  string
	memoryListTags []string
)

var memoryAddCmd = &cobra.Command{
	Use:   "add <category> <body>",
	Short: "Record a memory entry (category: pitfall, convention, or decision)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryAdd,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory entries",
	RunE:  runMemoryList,
}

func init() {
	memoryAddCmd.Flags().StringSliceVar(&memoryAddTags, "tags", nil, "Retrieval tags, typically capability or domain names")
	memoryAddCmd.Flags().StringVar(&memoryAddTask, "task", "", "Originating task ID")
	memoryListCmd.Flags().StringVar(&memoryListCat, "category", "", "Filter by category")
	memoryListCmd.Flags().StringSliceVar(&memoryListTags, "tag", nil, "Only entries carrying every given tag")

	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryListCmd)
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	mem, err := openMemory(root)
	if err != nil {
		return err
	}
	defer mem.Close()

	entry := &models.MemoryEntry{
		Category: models.MemoryCategory(args[0]),
		Body:     args[1],
		Tags:     memoryAddTags,
		TaskID:   memoryAddTask,
	}
	if err := mem.Append(entry); err != nil {
		return err
	}

	fmt.Printf("Recorded %s %s\n", entry.Category, color.HiBlackString(entry.ID))
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	mem, err := openMemory(root)
	if err != nil {
		return err
	}
	defer mem.Close()

	entries, err := mem.Query(models.MemoryCategory(memoryListCat), memoryListTags)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No matching entries.")
		return nil
	}

	for _, e := range entries {
		tag := ""
		if len(e.Tags) > 0 {
			tag = color.HiBlackString("  %v", e.Tags)
		}
		fmt.Printf("%s  %s%s\n", categoryColored(e.Category), e.Body, tag)
	}
	return nil
}

func categoryColored(c models.MemoryCategory) string {
	switch c {
	case models.MemoryPitfall:
		return color.RedString("%-10s", c)
	case models.MemoryConvention:
		return color.YellowString("%-10s", c)
	default:
		return color.CyanString("%-10s", c)
	}
}
