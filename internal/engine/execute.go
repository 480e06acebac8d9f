package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gantrydev/gantry/internal/review"
	"github.com/gantrydev/gantry/internal/specialist"
	"github.com/gantrydev/gantry/pkg/models"
)

// maxFixAttempts bounds the mechanical verify-fix loop so a self-check that
// never converges blocks the task instead of spinning.
const maxFixAttempts = 10

// Execute runs a task from Admitted to a terminal state and returns the
// terminal record. The task must have been admitted by the dispatcher; the
// engine does not re-check dependency gates.
//
// Terminal outcomes: Completed (shipped and committed), Blocked (missing
// precondition, unfixable self-check failure, review timeout, or commit
// failure), Escalated (MAJOR_RETHINK or iteration cap exhausted). Memory
// capture failures never fail the task.
func (e *Engine) Execute(ctx context.Context, task *models.Task) (*models.TerminalRecord, error) {
	if task.Status != models.TaskStatusAdmitted {
		return nil, fmt.Errorf("task %s is %s, not admitted", task.ID, task.Status)
	}

	wc, rec, err := e.reAnchor(ctx, task)
	if err != nil || rec != nil {
		return rec, err
	}

	return e.runLoop(ctx, task, wc)
}

// reAnchor rebuilds the task's working context: epic notes, relevant memory,
// and dependency summaries. A failed precondition check terminates the task
// as Blocked; the returned record is non-nil in that case.
func (e *Engine) reAnchor(ctx context.Context, task *models.Task) (specialist.WorkContext, *models.TerminalRecord, error) {
	var wc specialist.WorkContext

	if err := e.setStatus(task, models.TaskStatusReAnchoring); err != nil {
		return wc, nil, err
	}
	if task.StartedAt == nil {
		now := time.Now()
		task.StartedAt = &now
		if err := e.store.UpdateTask(task); err != nil {
			return wc, nil, err
		}
	}

	epic, err := e.store.GetEpic(task.EpicID)
	if err != nil {
		return wc, nil, fmt.Errorf("load epic context: %w", err)
	}
	wc.EpicContext = epic.Context

	if e.memory != nil {
		for _, cat := range []models.MemoryCategory{models.MemoryPitfall, models.MemoryConvention, models.MemoryDecision} {
			entries, err := e.memory.Query(cat, []string{task.Capability})
			if err != nil {
				e.logger.Log("task %s: memory query failed: %v", task.ID, err)
				continue
			}
			wc.Memories = append(wc.Memories, entries...)
		}
	}

	wc.DependencySummaries = make(map[string]string)
	for _, depID := range task.DependsOn {
		dep, err := e.store.GetTask(depID)
		if err != nil {
			return wc, nil, fmt.Errorf("load dependency %s: %w", depID, err)
		}
		wc.DependencySummaries[depID] = dep.DoneSummary
	}

	if pf, ok := e.exec.(specialist.Preflighter); ok {
		if err := pf.Preflight(ctx, task); err != nil {
			var blocked *specialist.BlockedError
			if errors.As(err, &blocked) {
				rec, err := e.finishBlocked(task, blocked.Reason)
				return wc, rec, err
			}
			return wc, nil, fmt.Errorf("preflight: %w", err)
		}
	}

	return wc, nil, nil
}

// runLoop drives the implement/verify/review cycle to a terminal state.
func (e *Engine) runLoop(ctx context.Context, task *models.Task, wc specialist.WorkContext) (*models.TerminalRecord, error) {
	fixAttempts := 0
	// Iterations from earlier execution cycles are retained as history but
	// do not count against this cycle's budget, so a re-admitted task gets a
	// fresh run at review.
	priorNeedsWork := task.NeedsWorkCount()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, rec, err := e.implement(ctx, task, wc)
		if err != nil || rec != nil {
			return rec, err
		}

		rec, failure, err := e.verify(ctx, task, candidate)
		if err != nil || rec != nil {
			return rec, err
		}
		if failure != nil {
			// Mechanical failure, loop back without consuming a review
			// iteration.
			fixAttempts++
			if fixAttempts >= maxFixAttempts {
				return e.finishBlocked(task, "self-checks did not converge")
			}
			wc.ReviewIssues = []string{failure.Reason}
			continue
		}

		// Cap exhaustion always surfaces as escalation, regardless of what
		// another review pass would say.
		if task.NeedsWorkCount()-priorNeedsWork >= e.cfg.Review.MaxIterations {
			e.logger.Log("task %s: iteration cap %d exhausted", task.ID, e.cfg.Review.MaxIterations)
			return e.finishEscalated(task, fmt.Sprintf("review iteration cap (%d) exhausted", e.cfg.Review.MaxIterations))
		}

		verdict, rec, err := e.reviewCandidate(ctx, task, candidate)
		if err != nil || rec != nil {
			return rec, err
		}

		switch verdict.Kind {
		case models.VerdictShip:
			return e.finishShipped(ctx, task, candidate)
		case models.VerdictMajorRethink:
			return e.finishEscalated(task, verdict.Rationale)
		case models.VerdictNeedsWork:
			wc.ReviewIssues = verdict.Issues
		default:
			return nil, fmt.Errorf("unknown verdict: %s", verdict.Kind)
		}
	}
}

func (e *Engine) implement(ctx context.Context, task *models.Task, wc specialist.WorkContext) (*specialist.Candidate, *models.TerminalRecord, error) {
	if err := e.setStatus(task, models.TaskStatusImplementing); err != nil {
		return nil, nil, err
	}

	candidate, err := e.exec.Implement(ctx, task, wc)
	if err != nil {
		var blocked *specialist.BlockedError
		if errors.As(err, &blocked) {
			rec, err := e.finishBlocked(task, blocked.Reason)
			return nil, rec, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		rec, ferr := e.finishBlocked(task, fmt.Sprintf("implementation failed: %v", err))
		return nil, rec, ferr
	}
	return candidate, nil, nil
}

// verify runs one self-check pass. A fixable failure is returned to the
// caller to retry implementation; an ambiguous one blocks the task.
func (e *Engine) verify(ctx context.Context, task *models.Task, c *specialist.Candidate) (*models.TerminalRecord, *specialist.VerifyFailure, error) {
	if err := e.setStatus(task, models.TaskStatusVerifying); err != nil {
		return nil, nil, err
	}

	failure, err := e.verifier.Verify(ctx, task, c)
	if err != nil {
		return nil, nil, fmt.Errorf("verify: %w", err)
	}
	if failure == nil {
		return nil, nil, nil
	}
	if !failure.Fixable {
		rec, err := e.finishBlocked(task, fmt.Sprintf("self-check failed: %s", failure.Reason))
		return rec, nil, err
	}
	e.logger.Log("task %s: fixable self-check failure: %s", task.ID, failure.Reason)
	return nil, failure, nil
}

func (e *Engine) reviewCandidate(ctx context.Context, task *models.Task, c *specialist.Candidate) (*models.Verdict, *models.TerminalRecord, error) {
	if err := e.setStatus(task, models.TaskStatusAwaitingReview); err != nil {
		return nil, nil, err
	}

	reviewCtx := ctx
	if e.cfg.Review.Timeout > 0 {
		var cancel context.CancelFunc
		reviewCtx, cancel = context.WithTimeout(ctx, e.cfg.Review.Timeout)
		defer cancel()
	}

	verdict, err := e.reviewer.Review(reviewCtx, review.Request{
		TaskID:             task.ID,
		CandidateSummary:   c.Summary,
		TouchedFiles:       c.TouchedFiles,
		AcceptanceCriteria: task.AcceptanceCriteria,
		History:            task.Iterations,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			rec, ferr := e.finishBlocked(task, "review timed out")
			return nil, rec, ferr
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		rec, ferr := e.finishBlocked(task, fmt.Sprintf("review failed: %v", err))
		return nil, rec, ferr
	}

	it := models.ReviewIteration{
		Sequence:  len(task.Iterations) + 1,
		Verdict:   verdict.Kind,
		Issues:    verdict.Issues,
		Notes:     verdict.Rationale,
		CreatedAt: time.Now(),
	}
	if err := e.store.AppendReview(task.ID, it); err != nil {
		return nil, nil, fmt.Errorf("record review iteration: %w", err)
	}
	task.Iterations = append(task.Iterations, it)

	return verdict, nil, nil
}

// finishShipped commits the candidate and completes the task. A commit
// failure leaves no partial state and blocks the task instead.
func (e *Engine) finishShipped(ctx context.Context, task *models.Task, c *specialist.Candidate) (*models.TerminalRecord, error) {
	if err := e.setStatus(task, models.TaskStatusShipped); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%s: %s", task.ID, task.Title)
	commitID, err := e.committer.Commit(ctx, task, c, message)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.finishBlocked(task, fmt.Sprintf("commit failed: %v", err))
	}

	captured := e.captureMemories(task, c)

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CommitID = commitID
	task.DoneSummary = c.Summary
	task.CompletedAt = &now
	if err := e.store.UpdateTask(task); err != nil {
		return nil, err
	}
	e.logger.Log("task %s: completed with commit %s", task.ID, commitID)

	return &models.TerminalRecord{
		TaskID:        task.ID,
		Status:        models.TaskStatusCompleted,
		Summary:       c.Summary,
		CommitID:      commitID,
		TouchedFiles:  c.TouchedFiles,
		Iterations:    task.Iterations,
		MemoryEntries: captured,
	}, nil
}

// captureMemories appends the candidate's proposed entries best-effort.
// Entries whose category and body already exist are skipped rather than
// recorded twice. Failures are logged and never fail the task.
func (e *Engine) captureMemories(task *models.Task, c *specialist.Candidate) int {
	if e.memory == nil || !e.cfg.Memory.Enabled {
		return 0
	}

	captured := 0
	for i := range c.Memories {
		entry := c.Memories[i]
		entry.TaskID = task.ID
		if e.memoryExists(task, &entry) {
			e.logger.Log("task %s: duplicate memory entry skipped: %s", task.ID, entry.Body)
			continue
		}
		if err := e.memory.Append(&entry); err != nil {
			e.logger.Log("task %s: memory capture failed: %v", task.ID, err)
			continue
		}
		captured++
	}
	return captured
}

// memoryExists reports whether an entry with the same category and body is
// already stored. A failed lookup counts as absent and capture proceeds.
func (e *Engine) memoryExists(task *models.Task, entry *models.MemoryEntry) bool {
	existing, err := e.memory.Query(entry.Category, nil)
	if err != nil {
		e.logger.Log("task %s: memory lookup failed: %v", task.ID, err)
		return false
	}
	for i := range existing {
		if existing[i].Body == entry.Body {
			return true
		}
	}
	return false
}

func (e *Engine) finishBlocked(task *models.Task, reason string) (*models.TerminalRecord, error) {
	now := time.Now()
	task.Status = models.TaskStatusBlocked
	task.BlockedReason = reason
	task.CompletedAt = &now
	if err := e.store.UpdateTask(task); err != nil {
		return nil, err
	}
	e.logger.Log("task %s: blocked: %s", task.ID, reason)

	return &models.TerminalRecord{
		TaskID:        task.ID,
		Status:        models.TaskStatusBlocked,
		BlockedReason: reason,
		Iterations:    task.Iterations,
	}, nil
}

func (e *Engine) finishEscalated(task *models.Task, reason string) (*models.TerminalRecord, error) {
	now := time.Now()
	task.Status = models.TaskStatusEscalated
	task.BlockedReason = reason
	task.CompletedAt = &now
	if err := e.store.UpdateTask(task); err != nil {
		return nil, err
	}
	e.logger.Log("task %s: escalated: %s", task.ID, reason)

	return &models.TerminalRecord{
		TaskID:     task.ID,
		Status:     models.TaskStatusEscalated,
		Summary:    reason,
		Iterations: task.Iterations,
	}, nil
}

func (e *Engine) setStatus(task *models.Task, status models.TaskStatus) error {
	task.Status = status
	if err := e.store.UpdateTask(task); err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	return nil
}
