package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then one of the parallel
// generation slots. Each phase waits at most maxWait. Returns a release func
// to be deferred.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	m.mu.RLock()
	closing := m.closing
	m.mu.RUnlock()
	if closing {
		return func() {}, ErrClosed
	}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		m.rejectedTotal.Add(1)
		return func() {}, tooBusyError{reason: "queue"}
	}
	queueDepth.Set(float64(len(m.queueCh)))

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
			queueDepth.Set(float64(len(m.queueCh)))
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		inflightGenerations.Inc()
		return func() {
			<-m.genCh
			<-m.queueCh
			inflightGenerations.Dec()
			queueDepth.Set(float64(len(m.queueCh)))
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		m.rejectedTotal.Add(1)
		return func() {}, tooBusyError{reason: "slot"}
	}
}
