package dispatch

import (
	"time"

	"github.com/gantrydev/gantry/pkg/models"
)

// EventType identifies a dispatcher event.
type EventType string

const (
	// EventTaskWaiting is emitted when a task's gates are unmet.
	EventTaskWaiting EventType = "task_waiting"
	// EventTaskAdmitted is emitted when a task passes its gates.
	EventTaskAdmitted EventType = "task_admitted"
	// EventTaskStarted is emitted when a task acquires a slot and begins.
	EventTaskStarted EventType = "task_started"
	// EventTaskFinished is emitted when a task reaches a terminal state.
	EventTaskFinished EventType = "task_finished"
	// EventEpicDone is emitted when every task in an epic is terminal.
	EventEpicDone EventType = "epic_done"
)

// Event is a dispatcher lifecycle notification.
type Event struct {
	Type EventType
	// TaskID is the subject task, empty for epic-level events.
	TaskID string
	EpicID string
	// Status is the task's status at emission time.
	Status models.TaskStatus
	// Blocking lists unmet gates for task_waiting events.
	Blocking []string
	Time     time.Time
}
