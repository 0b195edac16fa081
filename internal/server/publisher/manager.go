package publisher

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
)

// Manager supervises one Runner per group. Replacing a group's secret
// stops the old runner before the new one starts, so at most one loop per
// group is ever alive.
type Manager struct {
	persist Persister
	logger  logging.Logger

	mu      sync.Mutex
	runners map[string]*Runner
	secrets map[string]string
}

func NewManager(persist Persister, logger logging.Logger) *Manager {
	return &Manager{
		persist: persist,
		logger:  logger,
		runners: make(map[string]*Runner),
		secrets: make(map[string]string),
	}
}

// Add starts (or restarts, when the secret changed) the refresh loop for a
// group. A no-op when a runner with the same secret is already alive.
func (m *Manager) Add(ctx context.Context, groupID, secret string) {
	m.mu.Lock()
	old, exists := m.runners[groupID]
	if exists && m.secrets[groupID] == secret {
		m.mu.Unlock()
		return
	}
	delete(m.runners, groupID)
	delete(m.secrets, groupID)
	m.mu.Unlock()

	if exists {
		old.Stop()
	}

	r := NewRunner(groupID, secret, m.persist, m.logger, nil)

	m.mu.Lock()
	m.runners[groupID] = r
	m.secrets[groupID] = secret
	m.mu.Unlock()

	r.Start(ctx)
}

// Remove stops and forgets a group's runner.
func (m *Manager) Remove(groupID string) {
	m.mu.Lock()
	r, ok := m.runners[groupID]
	delete(m.runners, groupID)
	delete(m.secrets, groupID)
	m.mu.Unlock()

	if ok {
		r.Stop()
	}
}

// Snapshot returns the latest snapshot for a group, ok=false when no
// runner is registered.
func (m *Manager) Snapshot(groupID string) (Snapshot, bool) {
	m.mu.Lock()
	r, ok := m.runners[groupID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return r.Snapshot(), true
}

// StopAll tears every runner down and blocks until all loops have drained.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]*Runner)
	m.secrets = make(map[string]string)
	m.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
}
