package manager

import (
	"time"

	"talion/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, ModelID: m.model.ID, Err: m.err, LoadedAt: m.loadedAt}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		Model:            m.model,
		Backend:          m.backendKind,
		LoadMode:         m.loadMode,
		State:            string(m.state),
		LastError:        m.err,
		Parallelism:      cap(m.genCh),
		Inflight:         len(m.genCh),
		QueueLen:         len(m.queueCh),
		MaxQueueDepth:    cap(m.queueCh),
		LoadsTotal:       m.loadsTotal.Load(),
		GenerationsTotal: m.generationsTotal.Load(),
		RejectedTotal:    m.rejectedTotal.Load(),
		CacheEntries:     m.cacheLen(),
		UptimeSeconds:    int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:   now.Unix(),
	}
	if !m.loadedAt.IsZero() {
		resp.LoadedAtUnix = m.loadedAt.Unix()
	}
	return resp
}
