// Package gate implements dependency-gated admission: deciding whether a task
// may begin executing based on the capability blocking order within its epic
// and any explicit sibling dependencies.
package gate

import (
	"fmt"
	"sync"

	"github.com/gantrydev/gantry/internal/registry"
	"github.com/gantrydev/gantry/pkg/models"
)

// ProgressStore is the slice of the state store the resolver reads.
type ProgressStore interface {
	CapabilityProgress(epicID, capability string) (total, completed int, err error)
	GetTask(id string) (*models.Task, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the task may begin executing.
	Allowed bool
	// Blocking lists every unmet gate: predecessor capability names and
	// explicit dependency task IDs. Callers get the complete set so they
	// can report accurately, not just the first unmet gate.
	Blocking []string
}

// Resolver evaluates admission decisions against the capability registry and
// the current epic state.
type Resolver struct {
	reg   *registry.Registry
	store ProgressStore

	mu    sync.Mutex
	epics map[string]*sync.Mutex
}

// NewResolver creates a Resolver backed by the given registry and store.
func NewResolver(reg *registry.Registry, store ProgressStore) *Resolver {
	return &Resolver{
		reg:   reg,
		store: store,
		epics: make(map[string]*sync.Mutex),
	}
}

// CanAdmit checks every blocking edge whose successor is the capability, plus
// the task's explicit depends_on list, and returns the full set of unmet
// gates. A predecessor edge is satisfied when at least one task of that
// capability in the epic has completed, or every such task when the edge is
// marked all-instances. An edge with no qualifying tasks in the epic at all
// is unmet: the gate has never been reached.
func (r *Resolver) CanAdmit(task *models.Task) (Decision, error) {
	if err := r.reg.Validate(task.Domain, task.Capability); err != nil {
		return Decision{}, err
	}

	var blocking []string
	for _, e := range r.reg.Predecessors(task.Domain, task.Capability) {
		total, completed, err := r.store.CapabilityProgress(task.EpicID, e.Before)
		if err != nil {
			return Decision{}, fmt.Errorf("check predecessor %s: %w", e.Before, err)
		}

		satisfied := completed >= 1
		if e.AllInstances {
			satisfied = total > 0 && completed == total
		}
		if !satisfied {
			blocking = append(blocking, e.Before)
		}
	}

	for _, depID := range task.DependsOn {
		dep, err := r.store.GetTask(depID)
		if err != nil {
			return Decision{}, fmt.Errorf("check dependency %s: %w", depID, err)
		}
		if dep.Status != models.TaskStatusCompleted {
			blocking = append(blocking, depID)
		}
	}

	return Decision{Allowed: len(blocking) == 0, Blocking: blocking}, nil
}

// EpicLock returns the admission mutex for an epic. Check-and-admit sequences
// must run under this lock so that two tasks racing on the same gate observe
// a consistent order.
func (r *Resolver) EpicLock(epicID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.epics[epicID]
	if !ok {
		l = &sync.Mutex{}
		r.epics[epicID] = l
	}
	return l
}
