package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var (
	taskAddCapability string
	taskAddDomain     string
	taskAddSpec       string
	taskAddCriteria   string
	taskAddDependsOn  []string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <epic-id> <title>",
	Short: "Add a task to an epic",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskAdd,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its review history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task that has not shipped anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskReadmitCmd = &cobra.Command{
	Use:   "readmit <task-id>",
	Short: "Requeue a blocked or escalated task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskReadmit,
}

func init() {
	taskAddCmd.Flags().StringVar(&taskAddCapability, "capability", "", "Specialist capability required (required)")
	taskAddCmd.Flags().StringVar(&taskAddDomain, "domain", "backend", "Domain the capability belongs to")
	taskAddCmd.Flags().StringVar(&taskAddSpec, "spec", "", "Specification text")
	taskAddCmd.Flags().StringVar(&taskAddCriteria, "criteria", "", "Acceptance criteria")
	taskAddCmd.Flags().StringSliceVar(&taskAddDependsOn, "depends-on", nil, "Sibling task IDs that must complete first")
	taskAddCmd.MarkFlagRequired("capability")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskReadmitCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := loadRegistry(root)
	if err != nil {
		return err
	}
	if err := reg.Validate(taskAddDomain, taskAddCapability); err != nil {
		return err
	}

	epic, err := db.GetEpic(args[0])
	if err != nil {
		return err
	}

	num, err := db.NextTaskNum(epic.ID)
	if err != nil {
		return err
	}

	task := &models.Task{
		ID:                 fmt.Sprintf("%s.%d", epic.ID, num),
		EpicID:             epic.ID,
		Title:              args[1],
		Capability:         taskAddCapability,
		Domain:             taskAddDomain,
		Spec:               taskAddSpec,
		AcceptanceCriteria: taskAddCriteria,
		DependsOn:          taskAddDependsOn,
	}
	if err := db.CreateTask(task); err != nil {
		return err
	}
	if err := db.RefreshEpicCounts(epic.ID); err != nil {
		return err
	}
	if epic.Status == models.EpicStatusPlanning {
		epic.Status = models.EpicStatusReady
		if err := db.UpdateEpic(epic); err != nil {
			return err
		}
	}

	fmt.Printf("Added task %s: %s (%s)\n", color.CyanString(task.ID), task.Title, task.Capability)
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := db.GetTask(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", color.CyanString(task.ID), task.Title)
	fmt.Printf("Status:     %s\n", taskStatusColored(task.Status))
	fmt.Printf("Capability: %s (%s)\n", task.Capability, task.Domain)
	if len(task.DependsOn) > 0 {
		fmt.Printf("Depends on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if task.Spec != "" {
		fmt.Printf("Spec:\n  %s\n", task.Spec)
	}
	if task.AcceptanceCriteria != "" {
		fmt.Printf("Criteria:\n  %s\n", task.AcceptanceCriteria)
	}
	if task.BlockedReason != "" {
		fmt.Printf("Reason:     %s\n", color.RedString(task.BlockedReason))
	}
	if task.DoneSummary != "" {
		fmt.Printf("Summary:    %s\n", task.DoneSummary)
	}
	if task.CommitID != "" {
		fmt.Printf("Commit:     %s\n", task.CommitID)
	}

	if len(task.Iterations) > 0 {
		fmt.Println("\nReview history:")
		for _, it := range task.Iterations {
			fmt.Printf("  %d. %s  %s\n", it.Sequence, verdictColored(it.Verdict),
				it.CreatedAt.Local().Format(time.RFC822))
			for _, issue := range it.Issues {
				fmt.Printf("     - %s\n", issue)
			}
			if it.Notes != "" {
				fmt.Printf("     %s\n", it.Notes)
			}
		}
	}
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := db.GetTask(args[0])
	if err != nil {
		return err
	}
	if !task.Status.Cancellable() {
		return fmt.Errorf("task %s is %s and cannot be cancelled", task.ID, task.Status)
	}

	now := time.Now()
	task.Status = models.TaskStatusCancelled
	task.CompletedAt = &now
	if err := db.UpdateTask(task); err != nil {
		return err
	}
	if err := db.RefreshEpicCounts(task.EpicID); err != nil {
		return err
	}

	fmt.Printf("Cancelled task %s\n", task.ID)
	return nil
}

func runTaskReadmit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := db.GetTask(args[0])
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusBlocked && task.Status != models.TaskStatusEscalated {
		return fmt.Errorf("task %s is %s, only blocked or escalated tasks can be readmitted", task.ID, task.Status)
	}

	task.Status = models.TaskStatusPending
	task.BlockedReason = ""
	task.CompletedAt = nil
	if err := db.UpdateTask(task); err != nil {
		return err
	}

	fmt.Printf("Requeued task %s, run 'gantry run' to execute\n", task.ID)
	return nil
}

func printTaskLine(t *models.Task) {
	extra := ""
	if t.BlockedReason != "" {
		extra = "  " + color.RedString(t.BlockedReason)
	}
	fmt.Printf("  %s  %-15s %-18s %s%s\n",
		color.CyanString("%-14s", t.ID), taskStatusColored(t.Status), t.Capability, t.Title, extra)
}

func verdictColored(v models.VerdictKind) string {
	switch v {
	case models.VerdictShip:
		return color.GreenString("%-13s", v)
	case models.VerdictMajorRethink:
		return color.RedString("%-13s", v)
	default:
		return color.YellowString("%-13s", v)
	}
}

func taskStatusColored(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("%-15s", s)
	case models.TaskStatusBlocked, models.TaskStatusEscalated:
		return color.RedString("%-15s", s)
	case models.TaskStatusCancelled:
		return color.HiBlackString("%-15s", s)
	case models.TaskStatusPending:
		return fmt.Sprintf("%-15s", s)
	default:
		return color.YellowString("%-15s", s)
	}
}
