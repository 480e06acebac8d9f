package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gantrydev/gantry/pkg/models"
)

// AppendReview records one review iteration for a task. Sequences must be
// contiguous and start at 1; duplicates are rejected by the primary key.
func (db *DB) AppendReview(taskID string, it models.ReviewIteration) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !it.Verdict.Valid() {
		return fmt.Errorf("invalid verdict: %s", it.Verdict)
	}
	if it.Sequence < 1 {
		return fmt.Errorf("invalid review sequence: %d", it.Sequence)
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}

	issues, err := marshalStringSlice(it.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO reviews (task_id, sequence, verdict, issues, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, taskID, it.Sequence, string(it.Verdict), nullString(issues),
		nullString(it.Notes), formatTime(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// ListReviews returns the full review history for a task in sequence order.
func (db *DB) ListReviews(taskID string) ([]models.ReviewIteration, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.listReviewsLocked(taskID)
}

func (db *DB) listReviewsLocked(taskID string) ([]models.ReviewIteration, error) {
	rows, err := db.conn.Query(`
		SELECT sequence, verdict, issues, notes, created_at
		FROM reviews WHERE task_id = ? ORDER BY sequence
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var its []models.ReviewIteration
	for rows.Next() {
		var it models.ReviewIteration
		var verdict, createdAt string
		var issues, notes sql.NullString

		if err := rows.Scan(&it.Sequence, &verdict, &issues, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}

		it.Verdict = models.VerdictKind(verdict)
		it.Notes = notes.String
		if issues.Valid {
			if err := json.Unmarshal([]byte(issues.String), &it.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal issues: %w", err)
			}
		}
		if it.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		its = append(its, it)
	}
	return its, rows.Err()
}
