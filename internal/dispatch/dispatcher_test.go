package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/gate"
	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/state"
	"github.com/gantrydev/gantry/pkg/models"
)

// fakeRunner completes tasks immediately unless a hold channel is set.
type fakeRunner struct {
	store state.Store

	mu      sync.Mutex
	started []string
	holds   map[string]chan struct{}
	outcome map[string]models.TaskStatus
	fail    map[string]error
}

func newFakeRunner(store state.Store) *fakeRunner {
	return &fakeRunner{
		store:   store,
		holds:   make(map[string]chan struct{}),
		outcome: make(map[string]models.TaskStatus),
		fail:    make(map[string]error),
	}
}

func (f *fakeRunner) hold(taskID string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.holds[taskID] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeRunner) startedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeRunner) Execute(ctx context.Context, task *models.Task) (*models.TerminalRecord, error) {
	f.mu.Lock()
	f.started = append(f.started, task.ID)
	hold := f.holds[task.ID]
	status, ok := f.outcome[task.ID]
	failure := f.fail[task.ID]
	f.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	if !ok {
		status = models.TaskStatusCompleted
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	if status == models.TaskStatusBlocked {
		task.BlockedReason = "runner blocked"
	}
	if err := f.store.UpdateTask(task); err != nil {
		return nil, err
	}
	return &models.TerminalRecord{TaskID: task.ID, Status: status}, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	r, err := registry.New(map[string]*registry.Domain{
		"backend": {
			Capabilities: []string{"database-architect", "api-architect", "page-builder"},
			Edges: []registry.Edge{
				{Before: "database-architect", After: "api-architect"},
				{Before: "api-architect", After: "page-builder"},
			},
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return r
}

func testDispatcher(t *testing.T, cfg *config.Config) (*Dispatcher, *state.DB, *fakeRunner) {
	t.Helper()

	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := testRegistry(t)
	runner := newFakeRunner(db)
	d := New(db, reg, gate.NewResolver(reg, db), runner, cfg)
	t.Cleanup(d.Shutdown)
	return d, db, runner
}

func seedEpic(t *testing.T, db *state.DB, id string) {
	t.Helper()
	if err := db.CreateEpic(&models.Epic{ID: id, Title: "epic " + id}); err != nil {
		t.Fatalf("create epic: %v", err)
	}
}

func newTask(id, capability string) *models.Task {
	epicID, _, _ := models.ParseTaskID(id)
	return &models.Task{
		ID:         id,
		EpicID:     epicID,
		Title:      "task " + id,
		Capability: capability,
		Domain:     "backend",
	}
}

// waitFor polls until the condition holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func taskStatus(t *testing.T, db *state.DB, id string) models.TaskStatus {
	t.Helper()
	task, err := db.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return task.Status
}

func TestGatedTaskWaitsForPredecessor(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	release := runner.hold("epic1.1")

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(newTask("epic1.2", "api-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "epic1.1 to start", func() bool {
		return len(runner.startedTasks()) == 1
	})

	// The gated task must not dispatch while its predecessor runs.
	time.Sleep(50 * time.Millisecond)
	if started := runner.startedTasks(); len(started) != 1 || started[0] != "epic1.1" {
		t.Fatalf("expected only epic1.1 started, got %v", started)
	}
	if got := taskStatus(t, db, "epic1.2"); got != models.TaskStatusPending {
		t.Errorf("expected epic1.2 pending while gated, got %s", got)
	}

	close(release)
	d.Wait()

	if got := taskStatus(t, db, "epic1.1"); got != models.TaskStatusCompleted {
		t.Errorf("expected epic1.1 completed, got %s", got)
	}
	if got := taskStatus(t, db, "epic1.2"); got != models.TaskStatusCompleted {
		t.Errorf("expected epic1.2 completed after gate cleared, got %s", got)
	}

	started := runner.startedTasks()
	if len(started) != 2 || started[0] != "epic1.1" || started[1] != "epic1.2" {
		t.Errorf("expected ordered dispatch, got %v", started)
	}
}

func TestDomainConcurrencyCap(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.MaxPerDomain = 1
	d, db, runner := testDispatcher(t, cfg)
	seedEpic(t, db, "epic1")

	r1 := runner.hold("epic1.1")
	r2 := runner.hold("epic1.2")

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(newTask("epic1.2", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "first task to start", func() bool {
		return len(runner.startedTasks()) == 1
	})

	time.Sleep(50 * time.Millisecond)
	if started := runner.startedTasks(); len(started) != 1 {
		t.Fatalf("expected the domain cap to hold the second task, got %v", started)
	}

	close(r1)
	waitFor(t, "second task to start", func() bool {
		return len(runner.startedTasks()) == 2
	})
	close(r2)
	d.Wait()
}

func TestSubmitRejectsUnknownCapability(t *testing.T) {
	d, db, _ := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	if err := d.Submit(newTask("epic1.1", "ghost")); err == nil {
		t.Error("expected error for unregistered capability")
	}
	if err := d.Submit(newTask("nope.1", "database-architect")); err == nil {
		t.Error("expected error for missing epic")
	}
}

func TestCancelQueuedTask(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	// api-architect waits on a database-architect gate that never clears.
	if err := d.Submit(newTask("epic1.1", "api-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "task to queue", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusPending
	})
	if err := d.Cancel("epic1.1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	d.Wait()

	if got := taskStatus(t, db, "epic1.1"); got != models.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", got)
	}
	if started := runner.startedTasks(); len(started) != 0 {
		t.Errorf("expected no execution of cancelled task, got %v", started)
	}
}

func TestCancelRunningTask(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	runner.hold("epic1.1")
	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "task to start", func() bool {
		return len(runner.startedTasks()) == 1
	})
	if err := d.Cancel("epic1.1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	d.Wait()

	if got := taskStatus(t, db, "epic1.1"); got != models.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", got)
	}
}

func TestCancelRejectsTerminalTask(t *testing.T) {
	d, db, _ := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	d.Wait()

	if err := d.Cancel("epic1.1"); err == nil {
		t.Error("expected error cancelling a completed task")
	}
}

func TestReadmitBlockedTask(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	runner.mu.Lock()
	runner.outcome["epic1.1"] = models.TaskStatusBlocked
	runner.mu.Unlock()

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "task to block", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusBlocked
	})

	runner.mu.Lock()
	runner.outcome["epic1.1"] = models.TaskStatusCompleted
	runner.mu.Unlock()

	if err := d.Readmit("epic1.1"); err != nil {
		t.Fatalf("readmit: %v", err)
	}
	waitFor(t, "task to complete", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusCompleted
	})
	d.Wait()
}

func TestReadmitEscalatedTask(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	runner.mu.Lock()
	runner.outcome["epic1.1"] = models.TaskStatusEscalated
	runner.mu.Unlock()

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "task to escalate", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusEscalated
	})

	runner.mu.Lock()
	runner.outcome["epic1.1"] = models.TaskStatusCompleted
	runner.mu.Unlock()

	if err := d.Readmit("epic1.1"); err != nil {
		t.Fatalf("readmit: %v", err)
	}
	waitFor(t, "task to complete", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusCompleted
	})
	d.Wait()
}

func TestRunnerFailureBlocksTask(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	runner.mu.Lock()
	runner.fail["epic1.1"] = errors.New("database is locked")
	runner.mu.Unlock()

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "task to block", func() bool {
		return taskStatus(t, db, "epic1.1") == models.TaskStatusBlocked
	})
	d.Wait()

	task, err := db.GetTask("epic1.1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !strings.Contains(task.BlockedReason, "database is locked") {
		t.Errorf("expected failure surfaced in blocked reason, got %q", task.BlockedReason)
	}
}

func TestSubmitAfterShutdownDoesNotPanic(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := testRegistry(t)
	d := New(db, reg, gate.NewResolver(reg, db), newFakeRunner(db), nil)
	seedEpic(t, db, "epic1")

	d.Shutdown()

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit after shutdown: %v", err)
	}
	d.Wait()
}

func TestEpicStatusTracksTasks(t *testing.T) {
	d, db, runner := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	release := runner.hold("epic1.1")
	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "epic to go in_progress", func() bool {
		e, err := db.GetEpic("epic1")
		return err == nil && e.Status == models.EpicStatusInProgress
	})

	close(release)
	d.Wait()

	e, err := db.GetEpic("epic1")
	if err != nil {
		t.Fatalf("get epic: %v", err)
	}
	if e.Status != models.EpicStatusDone {
		t.Errorf("expected epic done, got %s", e.Status)
	}
	if e.TaskCount != 1 || e.TasksDone != 1 {
		t.Errorf("expected counts 1/1, got %d/%d", e.TaskCount, e.TasksDone)
	}
}

func TestPollReturnsCurrentState(t *testing.T) {
	d, db, _ := testDispatcher(t, nil)
	seedEpic(t, db, "epic1")

	if err := d.Submit(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	d.Wait()

	task, err := d.Poll("epic1.1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}

	if _, err := d.Poll("epic1.99"); err == nil {
		t.Error("expected error polling unknown task")
	}
}

func TestDeriveEpicStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []models.TaskStatus
		want     models.EpicStatus
	}{
		{"no tasks", nil, models.EpicStatusPlanning},
		{"all pending", []models.TaskStatus{models.TaskStatusPending}, models.EpicStatusReady},
		{"one running", []models.TaskStatus{models.TaskStatusImplementing, models.TaskStatusPending}, models.EpicStatusInProgress},
		{"all completed", []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusCompleted}, models.EpicStatusDone},
		{"completed and cancelled", []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusCancelled}, models.EpicStatusDone},
		{"one blocked", []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusBlocked}, models.EpicStatusBlocked},
		{"escalated", []models.TaskStatus{models.TaskStatusEscalated}, models.EpicStatusBlocked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tasks []models.Task
			for _, s := range tc.statuses {
				tasks = append(tasks, models.Task{Status: s})
			}
			if got := deriveEpicStatus(tasks); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextSelectionPolicy(t *testing.T) {
	_, db, _ := testDispatcher(t, nil)

	// Nothing exists: idle.
	s, err := Next(db, db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Kind != SuggestIdle {
		t.Errorf("expected idle, got %s", s.Kind)
	}

	// A planning epic: suggest planning it.
	seedEpic(t, db, "epic1")
	s, err = Next(db, db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Kind != SuggestPlan || s.EpicID != "epic1" {
		t.Errorf("expected plan epic1, got %+v", s)
	}

	// A ready epic with a pending task: suggest the task.
	if err := db.CreateTask(newTask("epic1.1", "database-architect")); err != nil {
		t.Fatalf("create task: %v", err)
	}
	e, _ := db.GetEpic("epic1")
	e.Status = models.EpicStatusReady
	if err := db.UpdateEpic(e); err != nil {
		t.Fatalf("update epic: %v", err)
	}

	s, err = Next(db, db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Kind != SuggestTask || s.TaskID != "epic1.1" {
		t.Errorf("expected task epic1.1, got %+v", s)
	}
}
