package usecase

import (
	"sort"
	"sync"

	"chatrelay/internal/domain"
)

// Registry is the in-memory agent catalog. Agents are seeded from config
// and mutated through the gateway API; health checks and the executor
// write status through UpdateStatus.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

var _ domain.AgentRegistry = (*Registry)(nil)

// NewRegistry builds a registry seeded with agents.
func NewRegistry(agents []domain.Agent) *Registry {
	r := &Registry{agents: make(map[string]*domain.Agent, len(agents))}
	for i := range agents {
		a := agents[i]
		r.agents[a.ID] = &a
	}
	return r
}

// Get implements domain.AgentRegistry. The returned value is a copy;
// mutations go through Put/UpdateStatus.
func (r *Registry) Get(id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, id)
	}
	cp := *a
	return &cp, nil
}

// List implements domain.AgentRegistry, returning copies sorted by ID.
func (r *Registry) List() []*domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put inserts or replaces an agent, preserving live status on replace.
func (r *Registry) Put(agent domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.agents[agent.ID]; ok {
		agent.IsActive = prev.IsActive
		agent.LatencyMs = prev.LatencyMs
	}
	r.agents[agent.ID] = &agent
}

// Delete removes an agent.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return domain.NewDomainError("Registry.Delete", domain.ErrAgentNotFound, id)
	}
	delete(r.agents, id)
	return nil
}

// UpdateStatus implements domain.AgentRegistry.
func (r *Registry) UpdateStatus(id string, active bool, latencyMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return domain.NewDomainError("Registry.UpdateStatus", domain.ErrAgentNotFound, id)
	}
	a.IsActive = active
	if latencyMs > 0 {
		a.LatencyMs = latencyMs
	}
	return nil
}
