// Package enginetest provides an in-memory stand-in for llama.cpp's
// llama-server, for tests that exercise the HTTP backend end to end.
package enginetest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// BOS is the token id the fake tokenizer prepends.
const BOS = 1

// DefaultModelPath is the model file the fake reports from /props.
const DefaultModelPath = "/models/saul-7b-instruct-v1.Q4_K_M.gguf"

// CompletionCall records one /completion payload.
type CompletionCall struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float32 `json:"temperature"`
	Seed        int     `json:"seed"`
}

// FakeServer tokenizes on whitespace (one token per field, plus BOS) and
// answers every completion with n_predict copies of Word.
type FakeServer struct {
	*httptest.Server

	// Word is appended once per predicted token.
	Word string

	delay           atomic.Int64
	failStatus      atomic.Int64
	notReady        atomic.Int64
	tokenizeCalls   atomic.Int64
	completionCalls atomic.Int64

	mu        sync.Mutex
	calls     []CompletionCall
	modelPath string
	noProps   bool
}

// NewFakeServer starts a fake llama-server. Callers must Close it.
func NewFakeServer() *FakeServer {
	f := newFake(DefaultModelPath)
	f.Server = httptest.NewServer(f.routes())
	return f
}

// ListenAndServe runs a fake llama-server on addr reporting modelPath from
// /props. It blocks until the listener fails; subprocess tests call it from
// a re-executed test binary.
func ListenAndServe(addr, modelPath string) error {
	return http.ListenAndServe(addr, newFake(modelPath).routes())
}

func newFake(modelPath string) *FakeServer {
	return &FakeServer{Word: "lorem", modelPath: modelPath}
}

func (f *FakeServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", f.handleHealth)
	mux.HandleFunc("/props", f.handleProps)
	mux.HandleFunc("/tokenize", f.handleTokenize)
	mux.HandleFunc("/completion", f.handleCompletion)
	return mux
}

// SetModelPath changes the model_path reported by /props.
func (f *FakeServer) SetModelPath(p string) {
	f.mu.Lock()
	f.modelPath = p
	f.mu.Unlock()
}

// DisableProps makes /props answer 404, like older llama-server builds.
func (f *FakeServer) DisableProps() {
	f.mu.Lock()
	f.noProps = true
	f.mu.Unlock()
}

// SetDelay makes /completion sleep d before answering, honoring cancellation.
func (f *FakeServer) SetDelay(d time.Duration) { f.delay.Store(int64(d)) }

// SetFailStatus makes /completion answer with status; 0 restores success.
func (f *FakeServer) SetFailStatus(status int) { f.failStatus.Store(int64(status)) }

// NotReadyFor makes the next n /health probes answer 503 (model loading).
func (f *FakeServer) NotReadyFor(n int) { f.notReady.Store(int64(n)) }

// TokenizeCalls returns the number of /tokenize requests served.
func (f *FakeServer) TokenizeCalls() int { return int(f.tokenizeCalls.Load()) }

// CompletionCalls returns the number of /completion requests served.
func (f *FakeServer) CompletionCalls() int { return int(f.completionCalls.Load()) }

// Calls returns the recorded /completion payloads.
func (f *FakeServer) Calls() []CompletionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompletionCall(nil), f.calls...)
}

// Tokenize is the fake tokenizer, exposed so tests can re-tokenize output.
func Tokenize(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields)+1)
	out = append(out, BOS)
	for i := range fields {
		out = append(out, 100+i)
	}
	return out
}

func (f *FakeServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if f.notReady.Add(-1) >= 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"Loading model"}}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (f *FakeServer) handleProps(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	p, off := f.modelPath, f.noProps
	f.mu.Unlock()
	if off {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"model_path": p, "total_slots": 1})
}

func (f *FakeServer) handleTokenize(w http.ResponseWriter, r *http.Request) {
	f.tokenizeCalls.Add(1)
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tokens": Tokenize(req.Content)})
}

func (f *FakeServer) handleCompletion(w http.ResponseWriter, r *http.Request) {
	f.completionCalls.Add(1)
	var req CompletionCall
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if d := time.Duration(f.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if status := int(f.failStatus.Load()); status != 0 {
		http.Error(w, `{"error":{"message":"generation failed"}}`, status)
		return
	}
	var b strings.Builder
	for i := 0; i < req.NPredict; i++ {
		b.WriteString(" ")
		b.WriteString(f.Word)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"content":          b.String(),
		"tokens_predicted": req.NPredict,
		"stopped_limit":    true,
		"stop_type":        "limit",
	})
}
