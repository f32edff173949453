package manager

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"talion/internal/engine"
	"talion/internal/engine/enginetest"
	"talion/pkg/types"
)

// fakeBackend tokenizes like enginetest.Tokenize and continues every prompt
// with copies of " lorem".
type fakeBackend struct {
	tokenizeErr error
	generateErr error
	// block, when non-nil, holds Generate until closed or ctx ends.
	block chan struct{}
	// started receives one value per Generate call, when non-nil.
	started chan struct{}

	mu            sync.Mutex
	generateCalls int
	active        int
	maxActive     int
	lastParams    engine.Params
	closed        bool
}

func (f *fakeBackend) Tokenize(ctx context.Context, text string) ([]int, error) {
	if f.tokenizeErr != nil {
		return nil, f.tokenizeErr
	}
	return enginetest.Tokenize(text), nil
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, maxNew int, p engine.Params) (engine.Completion, error) {
	f.mu.Lock()
	f.generateCalls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.lastParams = p
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return engine.Completion{}, ctx.Err()
		}
	}
	if f.generateErr != nil {
		return engine.Completion{}, f.generateErr
	}
	return engine.Completion{Text: strings.Repeat(" lorem", maxNew), Tokens: maxNew, FinishReason: "length"}, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

// harness bundles a Manager with its fake backend and event recorder.
type harness struct {
	m     *Manager
	be    *fakeBackend
	pub   *MemoryPublisher
	opens atomic.Int32
}

func newHarness(t *testing.T, be *fakeBackend, mut func(*ManagerConfig)) *harness {
	t.Helper()
	h := &harness{be: be, pub: NewMemoryPublisher()}
	cfg := ManagerConfig{
		Model:    types.Model{ID: "Equall/Saul-7B-Instruct-v1"},
		Backend:  engine.KindServer,
		LoadMode: "eager",
		Open: func(ctx context.Context) (engine.Backend, error) {
			h.opens.Add(1)
			return be, nil
		},
		MaxWait:       time.Second,
		SpecialTokens: []string{"<s>", "</s>", "<unk>"},
		Publisher:     h.pub,
	}
	if mut != nil {
		mut(&cfg)
	}
	h.m = New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.m.Close(ctx)
	})
	return h
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
