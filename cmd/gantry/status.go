package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/dispatch"
	"github.com/gantrydev/gantry/internal/state"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show epics and tasks",
	Long: `Display every epic with its member tasks and their current states.

With --watch, the display refreshes whenever the state database changes,
which is useful alongside a 'gantry run' in another terminal.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Refresh when state changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	if !statusWatch {
		return renderStatus(db)
	}
	return watchStatus(root, db)
}

func renderStatus(db *state.DB) error {
	epics, err := db.ListEpics("")
	if err != nil {
		return err
	}
	if len(epics) == 0 {
		fmt.Println("No epics. Create one with 'gantry epic new \"title\"'.")
		return nil
	}

	for i, e := range epics {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s  %s  %s  %d/%d\n", e.ID, epicStatusColored(e.Status), e.Title, e.TasksDone, e.TaskCount)

		tasks, err := db.ListTasksByEpic(e.ID)
		if err != nil {
			return err
		}
		for i := range tasks {
			printTaskLine(&tasks[i])
		}
	}
	return nil
}

// watchStatus re-renders on every state database change until interrupted.
func watchStatus(root string, db *state.DB) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: SQLite swaps WAL files rather than rewriting
	// the database file in place.
	if err := watcher.Add(filepath.Dir(state.ProjectDBPath(root))); err != nil {
		return fmt.Errorf("watch state directory: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	redraw := func() error {
		fmt.Print("\033[H\033[2J")
		fmt.Printf("gantry status (watching, ^C to stop)  %s\n\n", time.Now().Format("15:04:05"))
		return renderStatus(db)
	}
	if err := redraw(); err != nil {
		return err
	}

	// Debounce bursts of WAL writes.
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				pending = time.After(100 * time.Millisecond)
			}
		case <-pending:
			pending = nil
			if err := redraw(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		case <-sig:
			fmt.Println()
			return nil
		}
	}
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Suggest what to work on next",
	RunE:  runNext,
}

func runNext(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := dispatch.Next(db, db)
	if err != nil {
		return err
	}

	switch s.Kind {
	case dispatch.SuggestTask:
		fmt.Printf("Run task %s: gantry run --epic %s\n", s.TaskID, s.EpicID)
	case dispatch.SuggestPlan:
		fmt.Printf("Epic %s has no tasks yet: gantry task add %s \"...\" --capability <cap>\n", s.EpicID, s.EpicID)
	default:
		fmt.Println("Nothing pending. Create an epic with 'gantry epic new \"title\"'.")
	}
	return nil
}
