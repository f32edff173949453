package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"talion/internal/config"
	"talion/internal/engine/enginetest"
	"talion/internal/httpapi"
	"talion/internal/manager"
)

// stack is a full server wired to a fake llama-server.
type stack struct {
	fake *enginetest.FakeServer
	mgr  *manager.Manager
	srv  *httptest.Server
}

// newStack builds config → manager → mux the way the serve command does.
// Eager mode loads before the HTTP server starts.
func newStack(t *testing.T, mut func(*config.Config)) *stack {
	t.Helper()
	fake := enginetest.NewFakeServer()
	t.Cleanup(fake.Close)

	cfg := config.Default()
	cfg.LlamaURL = fake.URL
	cfg.ReadyTimeoutSeconds = 2
	cfg.MaxWaitMS = 1000
	if mut != nil {
		mut(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	mgr := manager.New(manager.ConfigFrom(cfg, zerolog.Nop()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	if cfg.LoadMode == config.LoadEager {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("eager load: %v", err)
		}
	}
	httpapi.SetLogger(zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return &stack{fake: fake, mgr: mgr, srv: srv}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPost(t *testing.T, url, contentType string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// postStatus posts with no body and returns the status code, or -1 when the
// request fails. Safe to call from helper goroutines.
func postStatus(url string) int {
	resp, err := http.Post(url, "", nil)
	if err != nil {
		return -1
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}
