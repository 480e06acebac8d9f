package state

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gantrydev/gantry/pkg/models"
)

// epicSeq extracts the numeric sequence from an epic ID of the form
// "ga-<seq>-<suffix>". IDs in other forms sort as zero.
func epicSeq(id string) int {
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(parts[1])
	return n
}

// CreateEpic inserts a new epic record.
func (db *DB) CreateEpic(e *models.Epic) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if e.Status == "" {
		e.Status = models.EpicStatusPlanning
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid epic status: %s", e.Status)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	_, err := db.conn.Exec(`
		INSERT INTO epics (id, seq, title, status, context, task_count, tasks_done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, epicSeq(e.ID), e.Title, string(e.Status), nullString(e.Context),
		e.TaskCount, e.TasksDone, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert epic: %w", err)
	}
	return nil
}

// GetEpic retrieves an epic by ID.
func (db *DB) GetEpic(id string) (*models.Epic, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, title, status, context, task_count, tasks_done, created_at, updated_at
		FROM epics WHERE id = ?
	`, id)

	e, err := scanEpic(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("epic not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get epic: %w", err)
	}
	return e, nil
}

// UpdateEpic persists changes to an existing epic. UpdatedAt is bumped.
func (db *DB) UpdateEpic(e *models.Epic) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !e.Status.Valid() {
		return fmt.Errorf("invalid epic status: %s", e.Status)
	}
	e.UpdatedAt = time.Now()

	result, err := db.conn.Exec(`
		UPDATE epics
		SET title = ?, status = ?, context = ?, task_count = ?, tasks_done = ?, updated_at = ?
		WHERE id = ?
	`, e.Title, string(e.Status), nullString(e.Context), e.TaskCount, e.TasksDone,
		formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update epic: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("epic not found: %s", e.ID)
	}
	return nil
}

// ListEpics returns epics filtered by status, or all epics when status is
// empty. Results are ordered by creation sequence.
func (db *DB) ListEpics(status models.EpicStatus) ([]models.Epic, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT id, title, status, context, task_count, tasks_done, created_at, updated_at
		FROM epics
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY seq"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	defer rows.Close()

	var epics []models.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan epic: %w", err)
		}
		epics = append(epics, *e)
	}
	return epics, rows.Err()
}

// NextEpicSeq returns the next sequence number for epic ID generation.
func (db *DB) NextEpicSeq() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var max int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM epics")
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("next epic seq: %w", err)
	}
	return max + 1, nil
}

// RefreshEpicCounts recomputes task_count and tasks_done for the epic from
// its member tasks.
func (db *DB) RefreshEpicCounts(epicID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		UPDATE epics
		SET task_count = (SELECT COUNT(*) FROM tasks WHERE epic_id = ?),
		    tasks_done = (SELECT COUNT(*) FROM tasks WHERE epic_id = ? AND status = ?),
		    updated_at = ?
		WHERE id = ?
	`, epicID, epicID, string(models.TaskStatusCompleted), formatTime(time.Now()), epicID)
	if err != nil {
		return fmt.Errorf("refresh epic counts: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanEpic(s scanner) (*models.Epic, error) {
	var e models.Epic
	var status, createdAt, updatedAt string
	var context sql.NullString

	err := s.Scan(&e.ID, &e.Title, &status, &context, &e.TaskCount, &e.TasksDone, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = models.EpicStatus(status)
	e.Context = context.String
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}
