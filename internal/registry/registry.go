// Package registry provides the static capability registry: which specialist
// capabilities exist per domain, and the blocking-order rules among them.
// The registry is validated fully at load time so that dispatch never has to
// reason about unregistered capabilities or cyclic blocking edges.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycleDetected indicates a circular blocking relationship within a domain.
var ErrCycleDetected = errors.New("circular capability dependency detected")

// ErrUnknownCapability indicates a capability that is not registered for a domain.
var ErrUnknownCapability = errors.New("capability not registered")

// ErrUnknownDomain indicates a domain that is not present in the registry.
var ErrUnknownDomain = errors.New("domain not registered")

// Edge is a directed blocking relationship: Before must reach Completed in an
// epic before tasks of capability After may be admitted.
type Edge struct {
	// Before is the predecessor capability.
	Before string `yaml:"before"`
	// After is the capability gated on the predecessor.
	After string `yaml:"after"`
	// AllInstances requires every task of the predecessor capability in the
	// epic to be completed, not just one qualifying task.
	AllInstances bool `yaml:"all_instances"`
}

// Domain holds the capabilities and blocking edges for one domain.
type Domain struct {
	// Capabilities lists the specialist roles available in this domain.
	Capabilities []string `yaml:"capabilities"`
	// Edges lists the blocking-order rules among the capabilities.
	Edges []Edge `yaml:"edges"`
	// MaxParallel overrides the dispatcher's per-domain concurrency cap for
	// specific capabilities, e.g. "page-builder: 3".
	MaxParallel map[string]int `yaml:"max_parallel"`
}

// Registry is the validated, immutable capability lookup table.
type Registry struct {
	domains map[string]*Domain
}

// New builds a Registry from raw domain definitions, validating that every
// edge endpoint is a registered capability and that no domain's blocking
// graph contains a cycle. Construction fails fast on any violation.
func New(domains map[string]*Domain) (*Registry, error) {
	for name, d := range domains {
		known := make(map[string]bool, len(d.Capabilities))
		for _, c := range d.Capabilities {
			if known[c] {
				return nil, fmt.Errorf("domain %s: duplicate capability %s", name, c)
			}
			known[c] = true
		}

		for _, e := range d.Edges {
			if !known[e.Before] {
				return nil, fmt.Errorf("domain %s: edge references %s: %w", name, e.Before, ErrUnknownCapability)
			}
			if !known[e.After] {
				return nil, fmt.Errorf("domain %s: edge references %s: %w", name, e.After, ErrUnknownCapability)
			}
			if e.Before == e.After {
				return nil, fmt.Errorf("domain %s: capability %s blocks itself: %w", name, e.Before, ErrCycleDetected)
			}
		}

		if hasCycle(d) {
			return nil, fmt.Errorf("domain %s: %w", name, ErrCycleDetected)
		}
	}

	return &Registry{domains: domains}, nil
}

// hasCycle runs depth-first search with coloring over a domain's edges to
// detect back edges.
func hasCycle(d *Domain) bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(d.Capabilities))
	next := make(map[string][]string)
	for _, e := range d.Edges {
		next[e.Before] = append(next[e.Before], e.After)
	}

	var visit func(c string) bool
	visit = func(c string) bool {
		colors[c] = 1
		for _, succ := range next[c] {
			switch colors[succ] {
			case 1:
				return true
			case 0:
				if visit(succ) {
					return true
				}
			}
		}
		colors[c] = 2
		return false
	}

	for _, c := range d.Capabilities {
		if colors[c] == 0 {
			if visit(c) {
				return true
			}
		}
	}
	return false
}

// Domains returns the registered domain names in sorted order.
func (r *Registry) Domains() []string {
	names := make([]string, 0, len(r.domains))
	for name := range r.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCapability reports whether the capability is registered for the domain.
func (r *Registry) HasCapability(domain, capability string) bool {
	d, ok := r.domains[domain]
	if !ok {
		return false
	}
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Validate returns an error when the capability is not registered for the
// domain. Used by the dispatcher before any task is accepted.
func (r *Registry) Validate(domain, capability string) error {
	if _, ok := r.domains[domain]; !ok {
		return fmt.Errorf("%s: %w", domain, ErrUnknownDomain)
	}
	if !r.HasCapability(domain, capability) {
		return fmt.Errorf("%s in domain %s: %w", capability, domain, ErrUnknownCapability)
	}
	return nil
}

// Predecessors returns the blocking edges whose After side is the given
// capability within the domain. The returned slice is in registry order.
func (r *Registry) Predecessors(domain, capability string) []Edge {
	d, ok := r.domains[domain]
	if !ok {
		return nil
	}
	var edges []Edge
	for _, e := range d.Edges {
		if e.After == capability {
			edges = append(edges, e)
		}
	}
	return edges
}

// MaxParallel returns the concurrency cap for the capability within the
// domain, or 0 if the registry does not override the dispatcher default.
func (r *Registry) MaxParallel(domain, capability string) int {
	d, ok := r.domains[domain]
	if !ok {
		return 0
	}
	return d.MaxParallel[capability]
}
