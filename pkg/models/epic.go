package models

import "time"

// EpicStatus represents the lifecycle state of an epic.
type EpicStatus string

const (
	// EpicStatusPlanning indicates the epic has no runnable tasks yet.
	EpicStatusPlanning EpicStatus = "planning"
	// EpicStatusReady indicates tasks exist and dispatch may begin.
	EpicStatusReady EpicStatus = "ready"
	// EpicStatusInProgress indicates at least one task has started.
	EpicStatusInProgress EpicStatus = "in_progress"
	// EpicStatusBlocked indicates no task can proceed without intervention.
	EpicStatusBlocked EpicStatus = "blocked"
	// EpicStatusDone indicates every member task reached a terminal state.
	EpicStatusDone EpicStatus = "done"
	// EpicStatusCancelled indicates the epic was abandoned.
	EpicStatusCancelled EpicStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s EpicStatus) Valid() bool {
	switch s {
	case EpicStatusPlanning, EpicStatusReady, EpicStatusInProgress,
		EpicStatusBlocked, EpicStatusDone, EpicStatusCancelled:
		return true
	default:
		return false
	}
}

// Epic is a named collection of tasks sharing context. Epics are created
// once per unit of requested work and never deleted, only marked done.
type Epic struct {
	// ID is the unique epic identifier, e.g. "ga-3-f2a".
	ID string `json:"id"`
	// Title is the goal description for the epic.
	Title string `json:"title"`
	// Status is the current lifecycle state.
	Status EpicStatus `json:"status"`
	// Context holds accumulated decisions and notes shared by member tasks.
	Context string `json:"context,omitempty"`
	// TaskCount is the number of member tasks.
	TaskCount int `json:"task_count"`
	// TasksDone is the number of member tasks that completed successfully.
	TasksDone int `json:"tasks_done"`
	// CreatedAt is when the epic was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the epic was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}
