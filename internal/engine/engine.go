// Package engine runs the task lifecycle state machine: from admission
// through re-anchoring, implementation, verification, and review to a
// terminal state, with the review iteration cap and escalation rules
// enforced here rather than in the reviewer.
package engine

import (
	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/review"
	"github.com/gantrydev/gantry/internal/specialist"
	"github.com/gantrydev/gantry/internal/state"
	"github.com/gantrydev/gantry/pkg/models"
)

// MemoryStore is the slice of the memory store the engine uses: retrieval
// during re-anchoring and best-effort capture at completion.
type MemoryStore interface {
	Append(e *models.MemoryEntry) error
	Query(category models.MemoryCategory, tags []string) ([]models.MemoryEntry, error)
}

// Engine executes tasks through their lifecycle.
type Engine struct {
	store     state.Store
	exec      specialist.Executor
	verifier  specialist.Verifier
	committer specialist.Committer
	reviewer  review.Reviewer

	cfg    *config.Config
	memory MemoryStore
	logger *DebugLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMemory enables memory retrieval and capture.
func WithMemory(m MemoryStore) Option {
	return func(e *Engine) { e.memory = m }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine with the given collaborators.
func New(store state.Store, exec specialist.Executor, verifier specialist.Verifier,
	committer specialist.Committer, reviewer review.Reviewer, opts ...Option) *Engine {

	e := &Engine{
		store:     store,
		exec:      exec,
		verifier:  verifier,
		committer: committer,
		reviewer:  reviewer,
		cfg:       config.Default(),
		logger:    NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
