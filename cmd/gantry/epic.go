package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/pkg/models"
)

var epicCmd = &cobra.Command{
	Use:   "epic",
	Short: "Manage epics",
}

var epicNewContext string

var epicNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a new epic",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpicNew,
}

var epicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List epics",
	RunE:  runEpicList,
}

var epicShowCmd = &cobra.Command{
	Use:   "show <epic-id>",
	Short: "Show an epic and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpicShow,
}

var epicCancelCmd = &cobra.Command{
	Use:   "cancel <epic-id>",
	Short: "Cancel an epic and its unstarted tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpicCancel,
}

func init() {
	epicNewCmd.Flags().StringVar(&epicNewContext, "context", "", "Shared context for member tasks")
	epicCmd.AddCommand(epicNewCmd)
	epicCmd.AddCommand(epicListCmd)
	epicCmd.AddCommand(epicShowCmd)
	epicCmd.AddCommand(epicCancelCmd)
}

// newEpicID builds an epic ID like "ga-3-f2a": a stable prefix, the creation
// sequence, and a short random suffix to keep IDs unique across rewrites.
func newEpicID(seq int) string {
	return fmt.Sprintf("ga-%d-%s", seq, uuid.New().String()[:3])
}

func runEpicNew(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	seq, err := db.NextEpicSeq()
	if err != nil {
		return err
	}

	epic := &models.Epic{
		ID:      newEpicID(seq),
		Title:   args[0],
		Status:  models.EpicStatusPlanning,
		Context: epicNewContext,
	}
	if err := db.CreateEpic(epic); err != nil {
		return err
	}

	fmt.Printf("Created epic %s: %s\n", color.CyanString(epic.ID), epic.Title)
	return nil
}

func runEpicList(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	epics, err := db.ListEpics("")
	if err != nil {
		return err
	}
	if len(epics) == 0 {
		fmt.Println("No epics. Create one with 'gantry epic new \"title\"'.")
		return nil
	}

	for _, e := range epics {
		fmt.Printf("%s  %-12s %3d/%-3d  %s\n",
			color.CyanString("%-12s", e.ID), epicStatusColored(e.Status),
			e.TasksDone, e.TaskCount, e.Title)
	}
	return nil
}

func runEpicShow(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	epic, err := db.GetEpic(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", color.CyanString(epic.ID), epic.Title)
	fmt.Printf("Status:  %s\n", epicStatusColored(epic.Status))
	fmt.Printf("Tasks:   %d done of %d\n", epic.TasksDone, epic.TaskCount)
	fmt.Printf("Created: %s\n", epic.CreatedAt.Local().Format(time.RFC822))
	if epic.Context != "" {
		fmt.Printf("Context:\n  %s\n", epic.Context)
	}

	tasks, err := db.ListTasksByEpic(epic.ID)
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		fmt.Println()
		for _, t := range tasks {
			printTaskLine(&t)
		}
	}
	return nil
}

func runEpicCancel(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	epic, err := db.GetEpic(args[0])
	if err != nil {
		return err
	}

	tasks, err := db.ListTasksByEpic(epic.ID)
	if err != nil {
		return err
	}
	cancelled := 0
	for i := range tasks {
		t := &tasks[i]
		if !t.Status.Cancellable() {
			continue
		}
		now := time.Now()
		t.Status = models.TaskStatusCancelled
		t.CompletedAt = &now
		if err := db.UpdateTask(t); err != nil {
			return err
		}
		cancelled++
	}

	epic.Status = models.EpicStatusCancelled
	if err := db.UpdateEpic(epic); err != nil {
		return err
	}
	if err := db.RefreshEpicCounts(epic.ID); err != nil {
		return err
	}

	fmt.Printf("Cancelled epic %s (%d tasks cancelled)\n", epic.ID, cancelled)
	return nil
}

func epicStatusColored(s models.EpicStatus) string {
	switch s {
	case models.EpicStatusDone:
		return color.GreenString("%-11s", s)
	case models.EpicStatusBlocked:
		return color.RedString("%-11s", s)
	case models.EpicStatusInProgress:
		return color.YellowString("%-11s", s)
	case models.EpicStatusCancelled:
		return color.HiBlackString("%-11s", s)
	default:
		return fmt.Sprintf("%-11s", s)
	}
}
