package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gantrydev/gantry/pkg/models"
)

// CreateTask inserts a new task record. The task's review history starts
// empty; iterations are appended through the review store.
func (db *DB) CreateTask(t *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, num, err := models.ParseTaskID(t.ID)
	if err != nil {
		return err
	}

	dependsOn, err := marshalStringSlice(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO tasks (id, epic_id, num, title, capability, domain, spec,
			acceptance_criteria, status, depends_on, blocked_reason, done_summary,
			commit_id, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.EpicID, num, t.Title, t.Capability, t.Domain,
		nullString(t.Spec), nullString(t.AcceptanceCriteria), string(t.Status),
		nullString(dependsOn), nullString(t.BlockedReason), nullString(t.DoneSummary),
		nullString(t.CommitID), formatTime(t.CreatedAt),
		nullableTime(t.StartedAt), nullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID with its full review history.
func (db *DB) GetTask(id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(taskSelect+" WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	if t.Iterations, err = db.listReviewsLocked(id); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask persists changes to an existing task. Review iterations are not
// written here; they are append-only via the review store.
func (db *DB) UpdateTask(t *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !t.Status.Valid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}

	dependsOn, err := marshalStringSlice(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}

	result, err := db.conn.Exec(`
		UPDATE tasks
		SET title = ?, capability = ?, domain = ?, spec = ?, acceptance_criteria = ?,
		    status = ?, depends_on = ?, blocked_reason = ?, done_summary = ?,
		    commit_id = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, t.Title, t.Capability, t.Domain, nullString(t.Spec), nullString(t.AcceptanceCriteria),
		string(t.Status), nullString(dependsOn), nullString(t.BlockedReason),
		nullString(t.DoneSummary), nullString(t.CommitID),
		nullableTime(t.StartedAt), nullableTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

// ListTasksByEpic returns all tasks for an epic in creation order. Review
// histories are not loaded; use GetTask for a single task with history.
func (db *DB) ListTasksByEpic(epicID string) ([]models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(taskSelect+" WHERE epic_id = ? ORDER BY num", epicID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// NextTaskNum returns the next task number within an epic.
func (db *DB) NextTaskNum(epicID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var max int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(num), 0) FROM tasks WHERE epic_id = ?", epicID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("next task num: %w", err)
	}
	return max + 1, nil
}

// CapabilityProgress reports how many tasks of the capability exist in the
// epic and how many of them have completed.
func (db *DB) CapabilityProgress(epicID, capability string) (total, completed int, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE epic_id = ? AND capability = ?
	`, string(models.TaskStatusCompleted), epicID, capability)
	if err := row.Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("capability progress: %w", err)
	}
	return total, completed, nil
}

const taskSelect = `
	SELECT id, epic_id, title, capability, domain, spec, acceptance_criteria,
	       status, depends_on, blocked_reason, done_summary, commit_id,
	       created_at, started_at, completed_at
	FROM tasks
`

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var status, createdAt string
	var spec, criteria, dependsOn, blockedReason, doneSummary, commitID sql.NullString
	var startedAt, completedAt sql.NullString

	err := s.Scan(&t.ID, &t.EpicID, &t.Title, &t.Capability, &t.Domain,
		&spec, &criteria, &status, &dependsOn, &blockedReason, &doneSummary,
		&commitID, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Spec = spec.String
	t.AcceptanceCriteria = criteria.String
	t.Status = models.TaskStatus(status)
	t.BlockedReason = blockedReason.String
	t.DoneSummary = doneSummary.String
	t.CommitID = commitID.String
	if dependsOn.Valid {
		if err := json.Unmarshal([]byte(dependsOn.String), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// marshalStringSlice JSON-encodes a slice for TEXT storage. Empty slices
// encode as the empty string so they round-trip as NULL.
func marshalStringSlice(s []string) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// nullableTime converts an optional time to sql.NullString.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
