package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"responder/core"
	"responder/playbook"
)

// MemoryStore keeps incidents, playbooks and execution traces in
// process memory behind a RWMutex. It backs tests and single-process
// deployments that do not need durability.
type MemoryStore struct {
	mu         sync.RWMutex
	incidents  map[uuid.UUID]*core.Incident
	playbooks  map[uuid.UUID]*playbook.Playbook
	executions map[uuid.UUID]*playbook.Execution
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents:  make(map[uuid.UUID]*core.Incident),
		playbooks:  make(map[uuid.UUID]*playbook.Playbook),
		executions: make(map[uuid.UUID]*playbook.Execution),
	}
}

// ---- incidents ----

// SaveIncident stores a new incident. The ID must not already exist.
func (m *MemoryStore) SaveIncident(_ context.Context, incident *core.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.incidents[incident.ID]; exists {
		return ErrIncidentExists
	}
	m.incidents[incident.ID] = incident
	return nil
}

// GetIncident returns one incident by ID.
func (m *MemoryStore) GetIncident(_ context.Context, id uuid.UUID) (*core.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return incident, nil
}

// UpdateIncident replaces a stored incident.
func (m *MemoryStore) UpdateIncident(_ context.Context, incident *core.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	m.incidents[incident.ID] = incident
	return nil
}

// ListIncidents returns all incidents ordered by creation time.
func (m *MemoryStore) ListIncidents(_ context.Context) ([]*core.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	incidents := make([]*core.Incident, 0, len(m.incidents))
	for _, incident := range m.incidents {
		incidents = append(incidents, incident)
	}
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.Before(incidents[j].CreatedAt)
	})
	return incidents, nil
}

// ---- playbooks ----

// SavePlaybook stores a new playbook. Names are unique.
func (m *MemoryStore) SavePlaybook(_ context.Context, pb *playbook.Playbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.playbooks {
		if existing.Name == pb.Name && existing.ID != pb.ID {
			return ErrPlaybookNameExists
		}
	}
	m.playbooks[pb.ID] = pb
	return nil
}

// GetPlaybook returns one playbook by ID.
func (m *MemoryStore) GetPlaybook(_ context.Context, id uuid.UUID) (*playbook.Playbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pb, ok := m.playbooks[id]
	if !ok {
		return nil, ErrPlaybookNotFound
	}
	return pb, nil
}

// ListPlaybooks returns the catalog ordered by name.
func (m *MemoryStore) ListPlaybooks(_ context.Context) ([]*playbook.Playbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	playbooks := make([]*playbook.Playbook, 0, len(m.playbooks))
	for _, pb := range m.playbooks {
		playbooks = append(playbooks, pb)
	}
	sort.Slice(playbooks, func(i, j int) bool {
		return playbooks[i].Name < playbooks[j].Name
	})
	return playbooks, nil
}

// UpdatePlaybook replaces a stored playbook.
func (m *MemoryStore) UpdatePlaybook(_ context.Context, pb *playbook.Playbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playbooks[pb.ID]; !ok {
		return ErrPlaybookNotFound
	}
	for _, existing := range m.playbooks {
		if existing.Name == pb.Name && existing.ID != pb.ID {
			return ErrPlaybookNameExists
		}
	}
	m.playbooks[pb.ID] = pb
	return nil
}

// DeletePlaybook removes a playbook by ID.
func (m *MemoryStore) DeletePlaybook(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playbooks[id]; !ok {
		return ErrPlaybookNotFound
	}
	delete(m.playbooks, id)
	return nil
}

// ---- executions ----

// SaveExecution stores or replaces an execution trace.
func (m *MemoryStore) SaveExecution(_ context.Context, exec *playbook.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[exec.ID] = exec
	return nil
}

// GetExecution returns one execution trace by ID.
func (m *MemoryStore) GetExecution(_ context.Context, id uuid.UUID) (*playbook.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}

// ListExecutions returns all traces, newest first.
func (m *MemoryStore) ListExecutions(_ context.Context) ([]*playbook.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	execs := make([]*playbook.Execution, 0, len(m.executions))
	for _, exec := range m.executions {
		execs = append(execs, exec)
	}
	sortExecutions(execs)
	return execs, nil
}

// ListExecutionsForIncident returns one incident's history, newest first.
func (m *MemoryStore) ListExecutionsForIncident(_ context.Context, incidentID uuid.UUID) ([]*playbook.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var execs []*playbook.Execution
	for _, exec := range m.executions {
		if exec.IncidentID == incidentID {
			execs = append(execs, exec)
		}
	}
	sortExecutions(execs)
	return execs, nil
}

func sortExecutions(execs []*playbook.Execution) {
	sort.Slice(execs, func(i, j int) bool {
		return execs[i].StartedAt.After(execs[j].StartedAt)
	})
}
