// Package dispatch runs the orchestrator loop: accepting tasks, holding them
// until their dependency gates clear, bounding per-domain concurrency, and
// driving admitted tasks through the lifecycle engine.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/gate"
	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/internal/state"
	"github.com/gantrydev/gantry/pkg/models"
)

// Runner executes an admitted task to a terminal state. Satisfied by
// engine.Engine.
type Runner interface {
	Execute(ctx context.Context, task *models.Task) (*models.TerminalRecord, error)
}

// Dispatcher coordinates task admission and execution.
type Dispatcher struct {
	store    state.Store
	reg      *registry.Registry
	resolver *gate.Resolver
	runner   Runner
	cfg      *config.Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
	gates   map[string]chan struct{}
	domains map[string]chan struct{}
	caps    map[string]chan struct{}

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher. The resolver must share the dispatcher's store.
func New(store state.Store, reg *registry.Registry, resolver *gate.Resolver, runner Runner, cfg *config.Config) *Dispatcher {
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		store:    store,
		reg:      reg,
		resolver: resolver,
		runner:   runner,
		cfg:      cfg,
		running:  make(map[string]context.CancelFunc),
		gates:    make(map[string]chan struct{}),
		domains:  make(map[string]chan struct{}),
		caps:     make(map[string]chan struct{}),
		events:   make(chan Event, 100),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the channel of dispatcher lifecycle events.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Submit validates and persists a task, then schedules it. The task starts
// pending and is admitted as soon as its gates clear and a slot is free.
func (d *Dispatcher) Submit(task *models.Task) error {
	if err := d.reg.Validate(task.Domain, task.Capability); err != nil {
		return err
	}
	if _, err := d.store.GetEpic(task.EpicID); err != nil {
		return err
	}

	task.Status = models.TaskStatusPending
	if err := d.store.CreateTask(task); err != nil {
		return err
	}
	if err := d.afterTaskChange(task.EpicID); err != nil {
		return err
	}

	d.schedule(task.ID)
	return nil
}

// Enqueue schedules an already-persisted pending task, used when resuming
// work created in earlier sessions.
func (d *Dispatcher) Enqueue(taskID string) error {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("task %s is %s, not pending", taskID, task.Status)
	}
	d.schedule(taskID)
	return nil
}

// Poll returns the current state of a task, including its review history.
func (d *Dispatcher) Poll(taskID string) (*models.Task, error) {
	return d.store.GetTask(taskID)
}

// Cancel stops a task if it has not shipped anything yet. Running work is
// interrupted; tasks past Implementing cannot be cancelled.
func (d *Dispatcher) Cancel(taskID string) error {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if !task.Status.Cancellable() {
		return fmt.Errorf("task %s is %s and cannot be cancelled", taskID, task.Status)
	}

	d.mu.Lock()
	cancel, isRunning := d.running[taskID]
	d.mu.Unlock()
	if isRunning {
		cancel()
		// The run goroutine records the cancelled status.
		return nil
	}

	return d.markCancelled(task)
}

// Readmit requeues a blocked or escalated task for another execution cycle.
// Its review history is retained.
func (d *Dispatcher) Readmit(taskID string) error {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusBlocked && task.Status != models.TaskStatusEscalated {
		return fmt.Errorf("task %s is %s, only blocked or escalated tasks can be readmitted", taskID, task.Status)
	}

	task.Status = models.TaskStatusPending
	task.BlockedReason = ""
	task.CompletedAt = nil
	if err := d.store.UpdateTask(task); err != nil {
		return err
	}

	d.schedule(taskID)
	return nil
}

// Shutdown stops accepting work, cancels running tasks, and waits for all
// goroutines to exit.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
	close(d.events)
}

// Wait blocks until every scheduled task has reached a terminal state.
// Intended for tests and one-shot runs.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) schedule(taskID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runTask(taskID)
	}()
}

// runTask holds a task until admission, then executes it under the domain
// and capability slots.
func (d *Dispatcher) runTask(taskID string) {
	task, ok := d.awaitAdmission(taskID)
	if !ok {
		return
	}

	release, ok := d.acquireSlots(task)
	if !ok {
		return
	}
	defer release()

	// The task may have been cancelled while queued for a slot.
	task, err := d.store.GetTask(taskID)
	if err != nil || task.Status != models.TaskStatusAdmitted {
		return
	}

	taskCtx, cancel := context.WithCancel(d.ctx)
	d.mu.Lock()
	d.running[taskID] = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.running, taskID)
		d.mu.Unlock()
	}()

	d.emit(Event{Type: EventTaskStarted, TaskID: task.ID, EpicID: task.EpicID, Status: task.Status})

	rec, err := d.runner.Execute(taskCtx, task)
	if err != nil {
		if taskCtx.Err() != nil {
			if fresh, gerr := d.store.GetTask(taskID); gerr == nil && fresh.Status.Cancellable() {
				d.markCancelled(fresh)
			}
			d.afterTaskChange(task.EpicID)
			d.wake(task.EpicID)
			return
		}
		// An execution error outside cancellation is an infrastructure
		// fault; block the task so it surfaces instead of stranding at a
		// transient status.
		if fresh, gerr := d.store.GetTask(taskID); gerr == nil && !fresh.Status.Terminal() {
			d.block(fresh, fmt.Sprintf("execution failed: %v", err))
		}
		d.wake(task.EpicID)
		return
	}

	d.afterTaskChange(task.EpicID)
	d.emit(Event{Type: EventTaskFinished, TaskID: task.ID, EpicID: task.EpicID, Status: rec.Status})
	d.wake(task.EpicID)
}

// awaitAdmission blocks until the task's gates clear, then atomically flips
// it to Admitted. Admission checks run under the epic lock so two tasks
// racing on the same gate observe a consistent order.
func (d *Dispatcher) awaitAdmission(taskID string) (*models.Task, bool) {
	epicID, _, err := models.ParseTaskID(taskID)
	if err != nil {
		return nil, false
	}

	waitingReported := false
	for {
		// Fetch the gate generation before reading state so a wake between
		// the read and the wait is never missed.
		ch := d.epicGate(epicID)

		task, err := d.store.GetTask(taskID)
		if err != nil {
			return nil, false
		}
		if task.Status != models.TaskStatusPending {
			// Cancelled or externally modified while queued.
			return nil, false
		}

		lock := d.resolver.EpicLock(task.EpicID)
		lock.Lock()
		decision, err := d.resolver.CanAdmit(task)
		if err != nil {
			lock.Unlock()
			d.block(task, fmt.Sprintf("admission check failed: %v", err))
			return nil, false
		}
		if decision.Allowed {
			task.Status = models.TaskStatusAdmitted
			err = d.store.UpdateTask(task)
			lock.Unlock()
			if err != nil {
				return nil, false
			}
			d.emit(Event{Type: EventTaskAdmitted, TaskID: task.ID, EpicID: task.EpicID, Status: task.Status})
			return task, true
		}
		lock.Unlock()

		if !waitingReported {
			waitingReported = true
			d.emit(Event{Type: EventTaskWaiting, TaskID: task.ID, EpicID: task.EpicID, Status: task.Status, Blocking: decision.Blocking})
		}

		select {
		case <-ch:
		case <-d.ctx.Done():
			return nil, false
		}
	}
}

// acquireSlots takes the per-domain slot and, when the registry caps the
// capability, the per-capability slot.
func (d *Dispatcher) acquireSlots(task *models.Task) (func(), bool) {
	domainSem := d.semaphore(d.domains, task.Domain, d.cfg.Dispatch.MaxPerDomain)

	select {
	case domainSem <- struct{}{}:
	case <-d.ctx.Done():
		return nil, false
	}

	capLimit := d.reg.MaxParallel(task.Domain, task.Capability)
	if capLimit <= 0 {
		return func() { <-domainSem }, true
	}

	capSem := d.semaphore(d.caps, task.Domain+"/"+task.Capability, capLimit)
	select {
	case capSem <- struct{}{}:
	case <-d.ctx.Done():
		<-domainSem
		return nil, false
	}
	return func() {
		<-capSem
		<-domainSem
	}, true
}

func (d *Dispatcher) semaphore(m map[string]chan struct{}, key string, capacity int) chan struct{} {
	if capacity < 1 {
		capacity = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	sem, ok := m[key]
	if !ok {
		sem = make(chan struct{}, capacity)
		m[key] = sem
	}
	return sem
}

// epicGate returns the current generation channel for an epic; wake closes
// it so every waiter re-checks its gates.
func (d *Dispatcher) epicGate(epicID string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.gates[epicID]
	if !ok {
		ch = make(chan struct{})
		d.gates[epicID] = ch
	}
	return ch
}

func (d *Dispatcher) wake(epicID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.gates[epicID]; ok {
		close(ch)
	}
	d.gates[epicID] = make(chan struct{})
}

func (d *Dispatcher) block(task *models.Task, reason string) {
	now := time.Now()
	task.Status = models.TaskStatusBlocked
	task.BlockedReason = reason
	task.CompletedAt = &now
	if err := d.store.UpdateTask(task); err != nil {
		return
	}
	d.afterTaskChange(task.EpicID)
	d.emit(Event{Type: EventTaskFinished, TaskID: task.ID, EpicID: task.EpicID, Status: task.Status})
}

func (d *Dispatcher) markCancelled(task *models.Task) error {
	now := time.Now()
	task.Status = models.TaskStatusCancelled
	task.CompletedAt = &now
	if err := d.store.UpdateTask(task); err != nil {
		return err
	}
	if err := d.afterTaskChange(task.EpicID); err != nil {
		return err
	}
	d.emit(Event{Type: EventTaskFinished, TaskID: task.ID, EpicID: task.EpicID, Status: task.Status})
	d.wake(task.EpicID)
	return nil
}

// afterTaskChange refreshes the epic's counters and derives its status from
// the member tasks.
func (d *Dispatcher) afterTaskChange(epicID string) error {
	if err := d.store.RefreshEpicCounts(epicID); err != nil {
		return err
	}

	epic, err := d.store.GetEpic(epicID)
	if err != nil {
		return err
	}
	if epic.Status == models.EpicStatusCancelled {
		return nil
	}

	tasks, err := d.store.ListTasksByEpic(epicID)
	if err != nil {
		return err
	}

	status := deriveEpicStatus(tasks)
	if status == epic.Status {
		return nil
	}
	epic.Status = status
	if err := d.store.UpdateEpic(epic); err != nil {
		return err
	}
	if status == models.EpicStatusDone {
		d.emit(Event{Type: EventEpicDone, EpicID: epicID})
	}
	return nil
}

// deriveEpicStatus computes an epic's status from its member tasks.
func deriveEpicStatus(tasks []models.Task) models.EpicStatus {
	if len(tasks) == 0 {
		return models.EpicStatusPlanning
	}

	allTerminal := true
	allCompleted := true
	anyStarted := false
	for _, t := range tasks {
		if !t.Status.Terminal() {
			allTerminal = false
		}
		if t.Status != models.TaskStatusCompleted && t.Status != models.TaskStatusCancelled {
			allCompleted = false
		}
		if t.Status != models.TaskStatusPending {
			anyStarted = true
		}
	}

	switch {
	case allTerminal && allCompleted:
		return models.EpicStatusDone
	case allTerminal:
		return models.EpicStatusBlocked
	case anyStarted:
		return models.EpicStatusInProgress
	default:
		return models.EpicStatusReady
	}
}

func (d *Dispatcher) emit(e Event) {
	// After Shutdown the events channel is closed; drop late events instead
	// of sending on it.
	if d.ctx.Err() != nil {
		return
	}
	e.Time = time.Now()
	select {
	case d.events <- e:
	default:
		// Slow consumers drop events rather than stall dispatch.
	}
}
