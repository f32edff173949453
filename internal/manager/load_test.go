package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"talion/internal/engine"
)

func TestLoad_ConcurrentCallersShareOneLoad(t *testing.T) {
	gate := make(chan struct{})
	be := &fakeBackend{}
	var h *harness
	h = newHarness(t, be, func(c *ManagerConfig) {
		c.Open = func(ctx context.Context) (engine.Backend, error) {
			h.opens.Add(1)
			<-gate
			return be, nil
		}
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.m.Load(testCtx(t))
		}()
	}
	// let the goroutines pile up behind the in-flight load
	time.Sleep(20 * time.Millisecond)
	if got := h.m.Snapshot().State; got != StateLoading {
		t.Fatalf("state=%s want loading", got)
	}
	close(gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if n := h.opens.Load(); n != 1 {
		t.Fatalf("opener called %d times, want 1", n)
	}
	if !h.m.Ready() {
		t.Fatalf("expected ready")
	}
	if err := h.m.Load(testCtx(t)); err != nil || h.opens.Load() != 1 {
		t.Fatalf("reload after ready must be a no-op: err=%v opens=%d", err, h.opens.Load())
	}
}

func TestLoad_FailureIsRetryable(t *testing.T) {
	be := &fakeBackend{}
	fail := true
	var h *harness
	h = newHarness(t, be, func(c *ManagerConfig) {
		c.Open = func(ctx context.Context) (engine.Backend, error) {
			h.opens.Add(1)
			if fail {
				return nil, errors.New("no such checkpoint")
			}
			return be, nil
		}
	})
	err := h.m.Load(testCtx(t))
	if err == nil || !strings.Contains(err.Error(), "error loading model: no such checkpoint") {
		t.Fatalf("unexpected err: %v", err)
	}
	snap := h.m.Snapshot()
	if snap.State != StateUnloaded || snap.Err != "no such checkpoint" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if h.pub.Count("load_error") != 1 {
		t.Fatalf("expected load_error event, got %+v", h.pub.Events())
	}

	fail = false
	if err := h.m.Load(testCtx(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !h.m.Ready() || h.opens.Load() != 2 {
		t.Fatalf("ready=%v opens=%d", h.m.Ready(), h.opens.Load())
	}
	if h.pub.Count("load_done") != 1 {
		t.Fatalf("expected load_done event, got %+v", h.pub.Events())
	}
}

func TestLoad_CallerCancelDoesNotAbortLoad(t *testing.T) {
	gate := make(chan struct{})
	be := &fakeBackend{}
	var h *harness
	h = newHarness(t, be, func(c *ManagerConfig) {
		c.Open = func(ctx context.Context) (engine.Backend, error) {
			<-gate
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return be, nil
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Load(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	close(gate)
	if err := h.m.Load(testCtx(t)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !h.m.Ready() {
		t.Fatalf("expected the detached load to complete")
	}
}

func TestWarm_LoadsInBackground(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	be := &fakeBackend{}
	h := newHarness(t, be, func(c *ManagerConfig) { c.LoadMode = "lazy" })
	if h.m.Ready() {
		t.Fatalf("lazy manager must start unloaded")
	}
	h.m.Warm()
	deadline := time.Now().Add(time.Second)
	for !h.m.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("model never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.m.Warm()
	if h.opens.Load() != 1 {
		t.Fatalf("warm after ready must not reload, opens=%d", h.opens.Load())
	}
}

func TestLoad_NoOpener(t *testing.T) {
	m := New(ManagerConfig{})
	if err := m.Load(testCtx(t)); err == nil {
		t.Fatalf("expected error without opener")
	}
}

func TestLoad_AfterClose(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)
	if err := h.m.Close(testCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.m.Load(testCtx(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
