// Package state provides SQLite-based persistence for epics, tasks, and
// review iterations.
package state

import (
	"io"

	"github.com/gantrydev/gantry/pkg/models"
)

// EpicStore handles epic-related persistence operations.
type EpicStore interface {
	CreateEpic(e *models.Epic) error
	GetEpic(id string) (*models.Epic, error)
	UpdateEpic(e *models.Epic) error
	ListEpics(status models.EpicStatus) ([]models.Epic, error)
	NextEpicSeq() (int, error)
	RefreshEpicCounts(epicID string) error
}

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasksByEpic(epicID string) ([]models.Task, error)
	NextTaskNum(epicID string) (int, error)
	// CapabilityProgress reports how many tasks of the capability exist in
	// the epic and how many of them have completed. Used by admission gating.
	CapabilityProgress(epicID, capability string) (total, completed int, err error)
}

// ReviewStore handles review iteration persistence. Iterations are
// append-only receipts; there is no update or delete.
type ReviewStore interface {
	AppendReview(taskID string, it models.ReviewIteration) error
	ListReviews(taskID string) ([]models.ReviewIteration, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence. It allows the
// dispatcher and engine to work with any backend without depending on the
// concrete SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	EpicStore
	TaskStore
	ReviewStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store       = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
	_ EpicStore   = (*DB)(nil)
	_ TaskStore   = (*DB)(nil)
	_ ReviewStore = (*DB)(nil)
)
