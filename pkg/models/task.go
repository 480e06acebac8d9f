package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task in its execution
// state machine.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and has not been admitted.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAdmitted indicates dependency gates passed; execution may begin.
	TaskStatusAdmitted TaskStatus = "admitted"
	// TaskStatusReAnchoring indicates the engine is rebuilding the task context.
	TaskStatusReAnchoring TaskStatus = "reanchoring"
	// TaskStatusImplementing indicates the specialist is producing a candidate.
	TaskStatusImplementing TaskStatus = "implementing"
	// TaskStatusVerifying indicates self-checks are running on the candidate.
	TaskStatusVerifying TaskStatus = "verifying"
	// TaskStatusAwaitingReview indicates the candidate is with the reviewer.
	TaskStatusAwaitingReview TaskStatus = "awaiting_review"
	// TaskStatusShipped indicates the reviewer approved; commit is pending.
	TaskStatusShipped TaskStatus = "shipped"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusBlocked indicates the task cannot proceed without intervention.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusEscalated indicates the review loop could not converge.
	TaskStatusEscalated TaskStatus = "escalated"
	// TaskStatusCancelled indicates the task was cancelled before any commit.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAdmitted, TaskStatusReAnchoring,
		TaskStatusImplementing, TaskStatusVerifying, TaskStatusAwaitingReview,
		TaskStatusShipped, TaskStatusCompleted, TaskStatusBlocked,
		TaskStatusEscalated, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further execution can occur without external
// re-admission.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusBlocked, TaskStatusEscalated, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable returns true if a task in this status may still be cancelled.
// Cancellation is only allowed before any partial commit can exist.
func (s TaskStatus) Cancellable() bool {
	switch s {
	case TaskStatusPending, TaskStatusAdmitted, TaskStatusReAnchoring, TaskStatusImplementing:
		return true
	default:
		return false
	}
}

// Task represents a unit of work belonging to an epic.
type Task struct {
	// ID is the unique identifier, formed as "<epic-id>.<n>".
	ID string `json:"id"`
	// EpicID is the ID of the owning epic.
	EpicID string `json:"epic_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Capability is the specialist role required to execute this task.
	Capability string `json:"capability"`
	// Domain groups related capabilities sharing blocking-order rules.
	Domain string `json:"domain"`
	// Spec is the specification text the specialist implements against.
	Spec string `json:"spec,omitempty"`
	// AcceptanceCriteria defines the criteria for task completion.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists sibling task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// BlockedReason records why the task is blocked, if it is.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Iterations is the ordered, append-only review history.
	Iterations []ReviewIteration `json:"iterations,omitempty"`
	// DoneSummary is the result summary recorded at completion.
	DoneSummary string `json:"done_summary,omitempty"`
	// CommitID is the identifier of the committed result, if completed.
	CommitID string `json:"commit_id,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when execution first began, if it did.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it did.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NeedsWorkCount returns the number of NEEDS_WORK verdicts recorded so far.
func (t *Task) NeedsWorkCount() int {
	n := 0
	for _, it := range t.Iterations {
		if it.Verdict == VerdictNeedsWork {
			n++
		}
	}
	return n
}

// TerminalRecord is the engine's report for a finished execution cycle.
type TerminalRecord struct {
	// TaskID is the task this record belongs to.
	TaskID string `json:"task_id"`
	// Status is the terminal status reached.
	Status TaskStatus `json:"status"`
	// Summary describes the outcome for dependent tasks and humans.
	Summary string `json:"summary,omitempty"`
	// CommitID is set only when Status is completed.
	CommitID string `json:"commit_id,omitempty"`
	// TouchedFiles lists resources modified by the committed result.
	TouchedFiles []string `json:"touched_files,omitempty"`
	// BlockedReason is set when Status is blocked.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Iterations is the full review history for this execution cycle.
	Iterations []ReviewIteration `json:"iterations,omitempty"`
	// MemoryEntries counts entries captured at completion.
	MemoryEntries int `json:"memory_entries,omitempty"`
}

// ParseTaskID splits a task ID of the form "<epic-id>.<n>" into its parts.
func ParseTaskID(id string) (epicID string, num int, err error) {
	i := strings.LastIndex(id, ".")
	if i < 1 || i == len(id)-1 {
		return "", 0, fmt.Errorf("invalid task ID format: %s", id)
	}
	num, err = strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid task number in ID %s: %w", id, err)
	}
	return id[:i], num, nil
}
