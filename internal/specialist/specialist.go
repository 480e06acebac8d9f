// Package specialist defines the boundary between the lifecycle engine and
// whatever actually produces and commits work: an external agent process, an
// API-backed model, or a test double. The engine never knows which.
package specialist

import (
	"context"
	"fmt"

	"github.com/gantrydev/gantry/pkg/models"
)

// WorkContext is the re-anchored context assembled before implementation:
// the epic's accumulated notes, relevant memory entries, and the summaries
// of completed dependency tasks.
type WorkContext struct {
	// EpicContext holds the epic's accumulated decisions and notes.
	EpicContext string
	// Memories are the relevant entries retrieved from the memory store.
	Memories []models.MemoryEntry
	// DependencySummaries maps completed dependency task IDs to their
	// done summaries.
	DependencySummaries map[string]string
	// ReviewIssues carries the issues from the latest NEEDS_WORK verdict,
	// empty on the first pass.
	ReviewIssues []string
}

// Candidate is a produced-but-uncommitted result awaiting verification,
// review, and commit.
type Candidate struct {
	// Summary describes what was produced.
	Summary string
	// TouchedFiles lists the resources the candidate modifies.
	TouchedFiles []string
	// Notes carries observations worth surfacing to the reviewer or to
	// dependent tasks.
	Notes []string
	// Memories are entries the specialist proposes for durable capture.
	// Only non-obvious, broadly applicable learnings belong here.
	Memories []models.MemoryEntry
}

// BlockedError signals that the specialist cannot proceed for a reason that
// needs human intervention, such as a file the task description names but
// that does not exist. The engine turns it into a blocked terminal state rather than
// an execution failure.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("specialist blocked: %s", e.Reason)
}

// Executor produces a candidate result for a task. Implementations must
// respect context cancellation.
type Executor interface {
	Implement(ctx context.Context, task *models.Task, wc WorkContext) (*Candidate, error)
}

// Preflighter is an optional Executor capability. When implemented, the
// engine calls Preflight during re-anchoring so missing preconditions, such
// as a file the spec requires that does not exist, surface as a blocked task
// before any implementation work starts.
type Preflighter interface {
	Preflight(ctx context.Context, task *models.Task) error
}

// Verifier runs self-checks on a candidate against the task's acceptance
// criteria. A VerifyFailure return distinguishes mechanically fixable
// defects, which loop back to implementation, from ambiguous ones, which
// block the task.
type Verifier interface {
	Verify(ctx context.Context, task *models.Task, c *Candidate) (*VerifyFailure, error)
}

// VerifyFailure describes a failed self-check.
type VerifyFailure struct {
	// Reason describes what failed.
	Reason string
	// Fixable reports whether another implementation pass can address it.
	Fixable bool
}

// Committer durably records an approved candidate. Commit must be atomic:
// either the full result lands and a commit ID is returned, or nothing is
// recorded and an error is returned.
type Committer interface {
	Commit(ctx context.Context, task *models.Task, c *Candidate, message string) (commitID string, err error)
}
