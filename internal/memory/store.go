// Package memory provides the durable, append-only memory store: categorized
// facts captured from completed tasks that outlive both the task and its epic.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gantrydev/gantry/pkg/models"
)

// Store provides SQLite-backed storage for memory entries. Entries are only
// ever appended; there is no update or delete path.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// ProjectDBPath returns the path to the project-local memory database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".gantry", "memory.db")
}

// NewStore creates a Store with the given database path. Parent directories
// are created if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Store{db: conn, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Migrate creates the necessary tables and indexes if they don't exist.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			body TEXT NOT NULL,
			tags TEXT,
			task_id TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memory_category ON memory_entries(category);
		CREATE INDEX IF NOT EXISTS idx_memory_task_id ON memory_entries(task_id);
	`)
	if err != nil {
		return fmt.Errorf("create memory schema: %w", err)
	}
	return nil
}

// Append records a new memory entry. A missing ID is generated; a missing
// timestamp defaults to now. The entry body must be non-empty.
func (s *Store) Append(e *models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !e.Category.Valid() {
		return fmt.Errorf("invalid memory category: %s", e.Category)
	}
	if e.Body == "" {
		return fmt.Errorf("memory entry body is empty")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tags, err := marshalTags(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO memory_entries (id, category, body, tags, task_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Category), e.Body, nullString(tags), nullString(e.TaskID),
		e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert memory entry: %w", err)
	}
	return nil
}

// Query returns entries matching the category and carrying every given tag.
// An empty category matches all categories; empty tags match everything.
// Results are ordered oldest first so repeated queries are stable.
func (s *Store) Query(category models.MemoryCategory, tags []string) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, category, body, tags, task_id, created_at
		FROM memory_entries
	`
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if hasAllTags(e.Tags, tags) {
			entries = append(entries, *e)
		}
	}
	return entries, rows.Err()
}

// ListByTask returns all entries captured from the given task.
func (s *Store) ListByTask(taskID string) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, category, body, tags, task_id, created_at
		FROM memory_entries WHERE task_id = ? ORDER BY created_at, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Count returns the total number of entries in the store.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	row := s.db.QueryRow("SELECT COUNT(*) FROM memory_entries")
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count memory entries: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, error) {
	var e models.MemoryEntry
	var category, createdAt string
	var tags, taskID sql.NullString

	if err := rows.Scan(&e.ID, &category, &e.Body, &tags, &taskID, &createdAt); err != nil {
		return nil, fmt.Errorf("scan memory entry: %w", err)
	}

	e.Category = models.MemoryCategory(category)
	e.TaskID = taskID.String
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = t
	return &e, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
