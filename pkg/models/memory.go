package models

import "time"

// MemoryCategory classifies a memory entry.
type MemoryCategory string

const (
	// MemoryPitfall records a known issue or gotcha to avoid.
	MemoryPitfall MemoryCategory = "pitfall"
	// MemoryConvention records a project convention or pattern.
	MemoryConvention MemoryCategory = "convention"
	// MemoryDecision records an architectural or design decision.
	MemoryDecision MemoryCategory = "decision"
)

// Valid returns true if the category is a known value.
func (c MemoryCategory) Valid() bool {
	switch c {
	case MemoryPitfall, MemoryConvention, MemoryDecision:
		return true
	default:
		return false
	}
}

// MemoryEntry is a durable, categorized fact captured from a completed task.
// Entries are append-only and outlive both the task and the epic.
type MemoryEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// Category classifies the entry.
	Category MemoryCategory `json:"category"`
	// Body is the free-text content of the fact.
	Body string `json:"body"`
	// Tags are free-text retrieval keys, typically capability or domain names.
	Tags []string `json:"tags,omitempty"`
	// TaskID is the originating task, if any.
	TaskID string `json:"task_id,omitempty"`
	// CreatedAt is when the entry was captured.
	CreatedAt time.Time `json:"created_at"`
}
