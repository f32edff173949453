package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"talion/internal/engine"
	"talion/pkg/types"
)

func TestStatus_Lifecycle(t *testing.T) {
	be := &fakeBackend{block: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, be, func(c *ManagerConfig) {
		c.Model = types.Model{ID: "Equall/Saul-7B-Instruct-v1", Name: "Saul-7B-Instruct-v1"}
		c.LoadMode = "lazy"
		c.Parallelism = 2
		c.MaxQueueDepth = 8
	})

	st := h.m.Status()
	if st.State != string(StateUnloaded) || st.LoadedAtUnix != 0 || st.LoadMode != "lazy" || st.Backend != engine.KindServer {
		t.Fatalf("unexpected initial status: %+v", st)
	}
	if st.Model.ID != "Equall/Saul-7B-Instruct-v1" || st.Parallelism != 2 || st.MaxQueueDepth != 8 {
		t.Fatalf("unexpected initial status: %+v", st)
	}

	first := startBlocked(t, h)
	st = h.m.Status()
	if st.State != string(StateReady) || st.Inflight != 1 || st.QueueLen != 1 || st.LoadedAtUnix == 0 {
		t.Fatalf("unexpected busy status: %+v", st)
	}
	if got := testutil.ToFloat64(inflightGenerations); got != 1 {
		t.Fatalf("inflight gauge=%v", got)
	}
	close(be.block)
	<-first

	st = h.m.Status()
	if st.Inflight != 0 || st.QueueLen != 0 || st.GenerationsTotal != 1 || st.LoadsTotal != 1 {
		t.Fatalf("unexpected idle status: %+v", st)
	}
	if got := testutil.ToFloat64(queueDepth); got != 0 {
		t.Fatalf("queue gauge=%v", got)
	}
}

func TestStatus_LastLoadError(t *testing.T) {
	before := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("error"))
	h := newHarness(t, &fakeBackend{}, func(c *ManagerConfig) {
		c.Open = func(ctx context.Context) (engine.Backend, error) {
			return nil, errors.New("gguf header invalid")
		}
	})
	if err := h.m.Load(testCtx(t)); err == nil {
		t.Fatalf("expected load error")
	}
	snap := h.m.Snapshot()
	if snap.State != StateUnloaded || snap.Err != "gguf header invalid" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if h.m.Status().LastError != "gguf header invalid" {
		t.Fatalf("last_error not reported")
	}
	if h.m.Ready() {
		t.Fatalf("ready after failed load")
	}
	if got := testutil.ToFloat64(modelLoadsTotal.WithLabelValues("error")) - before; got != 1 {
		t.Fatalf("load error counter delta=%v", got)
	}
}

func TestStatus_CacheMetrics(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	h := newHarness(t, &fakeBackend{}, func(c *ManagerConfig) {
		c.CacheEnabled = true
		c.CacheTTL = time.Minute
	})
	for i := 0; i < 3; i++ {
		if _, err := h.m.Generate(testCtx(t), admissionReq); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("hit")) - hits; got != 2 {
		t.Fatalf("cache hits delta=%v", got)
	}
}
