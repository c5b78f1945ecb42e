package memory

import (
	"context"
	"sync"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Targets is a static TargetRegistry, typically loaded from configuration.
type Targets struct {
	mu      sync.RWMutex
	targets map[string]domain.Target
}

var _ ports.TargetRegistry = (*Targets)(nil)

// NewTargets creates a registry holding targets.
func NewTargets(targets ...domain.Target) *Targets {
	r := &Targets{targets: make(map[string]domain.Target, len(targets))}
	for _, t := range targets {
		r.targets[t.NetID] = t
	}
	return r
}

// Target returns the target with the given NetId.
func (r *Targets) Target(ctx context.Context, netID string) (domain.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[netID]
	if !ok {
		return domain.Target{}, domain.ErrTargetNotFound
	}
	return t, nil
}

// Put adds or replaces a target.
func (r *Targets) Put(t domain.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.NetID] = t
}
