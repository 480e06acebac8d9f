package registry

import (
	"errors"
	"path/filepath"
	"testing"
)

func backendDomain() *Domain {
	return &Domain{
		Capabilities: []string{"database-architect", "api-architect", "page-builder"},
		Edges: []Edge{
			{Before: "database-architect", After: "api-architect"},
			{Before: "api-architect", After: "page-builder"},
		},
		MaxParallel: map[string]int{"page-builder": 3},
	}
}

func TestNewValidRegistry(t *testing.T) {
	r, err := New(map[string]*Domain{"backend": backendDomain()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.HasCapability("backend", "api-architect") {
		t.Error("expected api-architect to be registered in backend")
	}
	if r.HasCapability("backend", "unknown") {
		t.Error("expected unknown capability to be unregistered")
	}
	if r.HasCapability("frontend", "api-architect") {
		t.Error("expected unknown domain lookup to fail")
	}
}

func TestNewRejectsCycle(t *testing.T) {
	d := &Domain{
		Capabilities: []string{"a", "b", "c"},
		Edges: []Edge{
			{Before: "a", After: "b"},
			{Before: "b", After: "c"},
			{Before: "c", After: "a"},
		},
	}

	_, err := New(map[string]*Domain{"backend": d})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestNewRejectsSelfEdge(t *testing.T) {
	d := &Domain{
		Capabilities: []string{"a"},
		Edges:        []Edge{{Before: "a", After: "a"}},
	}

	_, err := New(map[string]*Domain{"backend": d})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected for self edge, got %v", err)
	}
}

func TestNewRejectsUnknownEdgeEndpoint(t *testing.T) {
	d := &Domain{
		Capabilities: []string{"a"},
		Edges:        []Edge{{Before: "a", After: "ghost"}},
	}

	_, err := New(map[string]*Domain{"backend": d})
	if !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("expected ErrUnknownCapability, got %v", err)
	}
}

func TestNewRejectsDuplicateCapability(t *testing.T) {
	d := &Domain{Capabilities: []string{"a", "a"}}

	_, err := New(map[string]*Domain{"backend": d})
	if err == nil {
		t.Fatal("expected error for duplicate capability")
	}
}

func TestPredecessors(t *testing.T) {
	r, err := New(map[string]*Domain{"backend": backendDomain()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preds := r.Predecessors("backend", "api-architect")
	if len(preds) != 1 {
		t.Fatalf("expected 1 predecessor edge, got %d", len(preds))
	}
	if preds[0].Before != "database-architect" {
		t.Errorf("expected database-architect predecessor, got %s", preds[0].Before)
	}

	if preds := r.Predecessors("backend", "database-architect"); len(preds) != 0 {
		t.Errorf("expected no predecessors for root capability, got %v", preds)
	}
}

func TestValidate(t *testing.T) {
	r, err := New(map[string]*Domain{"backend": backendDomain()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Validate("backend", "page-builder"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := r.Validate("backend", "ghost"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("expected ErrUnknownCapability, got %v", err)
	}
	if err := r.Validate("frontend", "page-builder"); !errors.Is(err, ErrUnknownDomain) {
		t.Errorf("expected ErrUnknownDomain, got %v", err)
	}
}

func TestMaxParallel(t *testing.T) {
	r, err := New(map[string]*Domain{"backend": backendDomain()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := r.MaxParallel("backend", "page-builder"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := r.MaxParallel("backend", "api-architect"); got != 0 {
		t.Errorf("expected 0 for capability without override, got %d", got)
	}
}

func TestParseDefaultContent(t *testing.T) {
	r, err := Parse([]byte(DefaultContent))
	if err != nil {
		t.Fatalf("unexpected error parsing default registry: %v", err)
	}

	if !r.HasCapability("backend", "database-architect") {
		t.Error("default registry missing database-architect")
	}
	if got := r.MaxParallel("backend", "page-builder"); got != 3 {
		t.Errorf("expected page-builder max_parallel 3, got %d", got)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("domains: {}")); err == nil {
		t.Error("expected error for registry with no domains")
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gantry", "registry.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Domains()) != 1 || r.Domains()[0] != "backend" {
		t.Errorf("expected [backend], got %v", r.Domains())
	}

	// Second write must refuse to overwrite.
	if err := WriteDefault(path); err == nil {
		t.Error("expected error writing over existing registry")
	}
}
