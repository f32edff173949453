package manager

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Load brings the model from unloaded to ready. Concurrent callers share a
// single in-flight load; a caller whose ctx ends stops waiting but does not
// abort the load. A failed load leaves the manager unloaded so a later call
// may retry.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.RLock()
	state, closing := m.state, m.closing
	m.mu.RUnlock()
	if closing {
		return ErrClosed
	}
	if state == StateReady {
		return nil
	}
	ch := m.loads.DoChan("load", func() (any, error) {
		return nil, m.load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Warm starts a background load if none has happened yet.
func (m *Manager) Warm() {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateUnloaded {
		return
	}
	go func() {
		if err := m.Load(context.Background()); err != nil {
			m.log.Error().Err(err).Msg("background load failed")
		}
	}()
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	if m.closing {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.open == nil {
		m.mu.Unlock()
		return errors.New("error loading model: no backend opener configured")
	}
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	start := time.Now()
	m.publisher.Publish(Event{Name: "load_start", ModelID: m.model.ID, Fields: map[string]any{"backend": m.backendKind}})
	be, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUnloaded
		m.err = err.Error()
		modelLoadsTotal.WithLabelValues("error").Inc()
		m.publisher.Publish(Event{Name: "load_error", ModelID: m.model.ID, Fields: map[string]any{"error": err.Error()}})
		return fmt.Errorf("error loading model: %w", err)
	}
	if m.closing {
		_ = be.Close()
		m.state = StateUnloaded
		return ErrClosed
	}
	m.backend = be
	m.state = StateReady
	m.loadedAt = time.Now()
	m.loadsTotal.Add(1)
	modelLoadsTotal.WithLabelValues("ok").Inc()
	m.publisher.Publish(Event{Name: "load_done", ModelID: m.model.ID, Fields: map[string]any{"dur_ms": time.Since(start).Milliseconds()}})
	return nil
}
