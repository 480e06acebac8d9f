package models

import "time"

// VerdictKind is the reviewer's categorical assessment of a candidate result.
type VerdictKind string

const (
	// VerdictShip indicates the acceptance criteria are satisfied.
	VerdictShip VerdictKind = "SHIP"
	// VerdictNeedsWork indicates specific, actionable defects remain.
	VerdictNeedsWork VerdictKind = "NEEDS_WORK"
	// VerdictMajorRethink indicates the approach itself is unsound and
	// further local iteration will not converge.
	VerdictMajorRethink VerdictKind = "MAJOR_RETHINK"
)

// Valid returns true if the verdict kind is a known value.
func (v VerdictKind) Valid() bool {
	switch v {
	case VerdictShip, VerdictNeedsWork, VerdictMajorRethink:
		return true
	default:
		return false
	}
}

// Verdict is the full outcome of one review pass.
type Verdict struct {
	// Kind is the categorical assessment.
	Kind VerdictKind `json:"kind"`
	// Issues lists actionable defects; set only for NEEDS_WORK.
	Issues []string `json:"issues,omitempty"`
	// Rationale explains why the approach is unsound; set for MAJOR_RETHINK.
	Rationale string `json:"rationale,omitempty"`
}

// ReviewIteration is an immutable record of one review pass. Iterations are
// appended to a task's history and never edited or removed.
type ReviewIteration struct {
	// Sequence is the 1-based iteration number for the task.
	Sequence int `json:"sequence"`
	// Verdict is the assessment returned by the reviewer.
	Verdict VerdictKind `json:"verdict"`
	// Issues lists the defects reported for NEEDS_WORK verdicts.
	Issues []string `json:"issues,omitempty"`
	// Notes holds the rationale for MAJOR_RETHINK or reviewer commentary.
	Notes string `json:"notes,omitempty"`
	// CreatedAt is when the review was recorded.
	CreatedAt time.Time `json:"created_at"`
}
