package manager

import (
	"context"
	"time"
)

// Close drains the manager: new work is rejected with ErrClosed, admitted
// requests get until ctx ends to finish, then the backend is released.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	prev := m.state
	if prev == StateReady {
		m.state = StateDraining
	}
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "drain_start", ModelID: m.model.ID, Fields: map[string]any{"queue": len(m.queueCh)}})

	if !m.waitDrained(ctx) {
		m.publisher.Publish(Event{Name: "drain_timeout", ModelID: m.model.ID, Fields: map[string]any{"inflight": len(m.genCh), "queue": len(m.queueCh)}})
	}
	if m.cache != nil {
		m.cache.Stop()
	}
	m.mu.Lock()
	be := m.backend
	m.backend = nil
	m.state = StateUnloaded
	m.mu.Unlock()
	var err error
	if be != nil {
		err = be.Close()
	}
	m.publisher.Publish(Event{Name: "drain_done", ModelID: m.model.ID, Fields: map[string]any{}})
	return err
}

// waitDrained polls until no request holds a queue slot. Returns false if ctx
// ended first.
func (m *Manager) waitDrained(ctx context.Context) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for len(m.queueCh) > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}
