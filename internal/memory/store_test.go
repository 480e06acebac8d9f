package memory

import (
	"path/filepath"
	"testing"

	"github.com/gantrydev/gantry/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestAppendGeneratesIDAndTimestamp(t *testing.T) {
	s := testStore(t)

	e := &models.MemoryEntry{
		Category: models.MemoryPitfall,
		Body:     "sqlite busy errors under parallel writers",
		Tags:     []string{"database-architect"},
		TaskID:   "ga-1-abc.1",
	}
	if err := s.Append(e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected generated timestamp")
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := testStore(t)

	if err := s.Append(&models.MemoryEntry{Category: "rumor", Body: "x"}); err == nil {
		t.Error("expected error for unknown category")
	}
	if err := s.Append(&models.MemoryEntry{Category: models.MemoryDecision}); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestQueryFiltersByCategoryAndTags(t *testing.T) {
	s := testStore(t)

	entries := []*models.MemoryEntry{
		{Category: models.MemoryPitfall, Body: "p1", Tags: []string{"backend", "database-architect"}},
		{Category: models.MemoryPitfall, Body: "p2", Tags: []string{"backend"}},
		{Category: models.MemoryConvention, Body: "c1", Tags: []string{"backend"}},
		{Category: models.MemoryDecision, Body: "d1"},
	}
	for _, e := range entries {
		if err := s.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pitfalls, err := s.Query(models.MemoryPitfall, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(pitfalls) != 2 {
		t.Errorf("expected 2 pitfalls, got %d", len(pitfalls))
	}

	tagged, err := s.Query(models.MemoryPitfall, []string{"database-architect"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(tagged) != 1 || tagged[0].Body != "p1" {
		t.Errorf("expected only p1, got %v", tagged)
	}

	all, err := s.Query("", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 entries, got %d", len(all))
	}

	none, err := s.Query(models.MemoryDecision, []string{"backend"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}

func TestQueryIsStableAcrossReads(t *testing.T) {
	s := testStore(t)

	for _, body := range []string{"a", "b", "c"} {
		if err := s.Append(&models.MemoryEntry{Category: models.MemoryConvention, Body: body}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, err := s.Query(models.MemoryConvention, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := s.Query(models.MemoryConvention, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical result sets, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("result order changed at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestListByTask(t *testing.T) {
	s := testStore(t)

	if err := s.Append(&models.MemoryEntry{Category: models.MemoryPitfall, Body: "p", TaskID: "ga-1-abc.1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(&models.MemoryEntry{Category: models.MemoryDecision, Body: "d", TaskID: "ga-1-abc.2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ListByTask("ga-1-abc.1")
	if err != nil {
		t.Fatalf("list by task: %v", err)
	}
	if len(got) != 1 || got[0].Body != "p" {
		t.Errorf("expected single entry p, got %v", got)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}
