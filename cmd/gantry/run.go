package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/dispatch"
	"github.com/gantrydev/gantry/internal/engine"
	"github.com/gantrydev/gantry/internal/gate"
	"github.com/gantrydev/gantry/internal/review"
	"github.com/gantrydev/gantry/internal/specialist"
	"github.com/gantrydev/gantry/pkg/models"
)

var runEpicID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute pending tasks",
	Long: `Execute every pending task, honoring capability blocking order and
the per-domain concurrency cap. Tasks whose gates are unmet wait until
their predecessors complete.

The implement, verify, and review phases run the hook commands from the
configuration; without hooks, tasks flow through as no-op candidates,
which is useful for trying out an epic's dependency structure.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runEpicID, "epic", "", "Only run tasks from this epic")
}

func runRun(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root)
	if err != nil {
		return err
	}
	db, err := openState(root)
	if err != nil {
		return err
	}
	defer db.Close()
	mem, err := openMemory(root)
	if err != nil {
		return err
	}
	defer mem.Close()

	logger := engine.NopLogger()
	if cfg.Debug.Enabled {
		logger = engine.NewDebugLoggerForProject(root)
		defer logger.Close()
	}

	eng := engine.New(db,
		&specialist.CommandExecutor{Command: cfg.Hooks.Implement, Dir: root},
		&specialist.CommandVerifier{Command: cfg.Hooks.Verify, Dir: root},
		&specialist.GitCommitter{Dir: root},
		&review.CommandReviewer{Command: cfg.Hooks.Review, Dir: root},
		engine.WithConfig(cfg),
		engine.WithMemory(mem),
		engine.WithLogger(logger),
	)

	d := dispatch.New(db, reg, gate.NewResolver(reg, db), eng, cfg)

	queued, err := enqueuePending(d, db)
	if err != nil {
		return err
	}
	if queued == 0 {
		fmt.Println("Nothing to run.")
		d.Shutdown()
		return nil
	}
	fmt.Printf("Running %d task(s)...\n\n", queued)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range d.Events() {
			printEvent(e)
		}
	}()

	d.Wait()
	d.Shutdown()
	wg.Wait()

	return printRunSummary(db)
}

// enqueuePending schedules every pending task, optionally limited to one epic.
func enqueuePending(d *dispatch.Dispatcher, db interface {
	ListEpics(status models.EpicStatus) ([]models.Epic, error)
	ListTasksByEpic(epicID string) ([]models.Task, error)
}) (int, error) {
	epics, err := db.ListEpics("")
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, e := range epics {
		if runEpicID != "" && e.ID != runEpicID {
			continue
		}
		if e.Status == models.EpicStatusCancelled {
			continue
		}
		tasks, err := db.ListTasksByEpic(e.ID)
		if err != nil {
			return 0, err
		}
		for _, t := range tasks {
			if t.Status != models.TaskStatusPending {
				continue
			}
			if err := d.Enqueue(t.ID); err != nil {
				return 0, err
			}
			queued++
		}
	}
	return queued, nil
}

func printEvent(e dispatch.Event) {
	switch e.Type {
	case dispatch.EventTaskWaiting:
		fmt.Printf("%s %s waiting on %v\n", color.HiBlackString("·"), e.TaskID, e.Blocking)
	case dispatch.EventTaskStarted:
		fmt.Printf("%s %s started\n", color.YellowString("▶"), e.TaskID)
	case dispatch.EventTaskFinished:
		switch e.Status {
		case models.TaskStatusCompleted:
			fmt.Printf("%s %s completed\n", color.GreenString("✓"), e.TaskID)
		case models.TaskStatusEscalated:
			fmt.Printf("%s %s escalated\n", color.RedString("✗"), e.TaskID)
		case models.TaskStatusBlocked:
			fmt.Printf("%s %s blocked\n", color.RedString("✗"), e.TaskID)
		default:
			fmt.Printf("%s %s %s\n", color.HiBlackString("-"), e.TaskID, e.Status)
		}
	case dispatch.EventEpicDone:
		fmt.Printf("%s epic %s done\n", color.GreenString("★"), e.EpicID)
	}
}

// printRunSummary reports tasks needing attention after a run.
func printRunSummary(db interface {
	ListEpics(status models.EpicStatus) ([]models.Epic, error)
	ListTasksByEpic(epicID string) ([]models.Task, error)
}) error {
	epics, err := db.ListEpics("")
	if err != nil {
		return err
	}

	var attention []models.Task
	for _, e := range epics {
		tasks, err := db.ListTasksByEpic(e.ID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status == models.TaskStatusBlocked || t.Status == models.TaskStatusEscalated {
				attention = append(attention, t)
			}
		}
	}

	if len(attention) > 0 {
		fmt.Printf("\n%d task(s) need attention:\n", len(attention))
		for i := range attention {
			printTaskLine(&attention[i])
		}
	}
	return nil
}
