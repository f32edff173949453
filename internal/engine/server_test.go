package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talion/internal/engine/enginetest"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func openFake(t *testing.T, f *enginetest.FakeServer) Backend {
	t.Helper()
	b, err := Open(testCtx(t), Options{Kind: KindServer, ServerURL: f.URL + "/", ReadyTimeout: 2 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestServerBackend_TokenizeAndGenerate(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	b := openFake(t, f)

	toks, err := b.Tokenize(testCtx(t), "Explain force majeure.")
	require.NoError(t, err)
	assert.Equal(t, []int{enginetest.BOS, 100, 101, 102}, toks)

	c, err := b.Generate(testCtx(t), "Explain force majeure.", 3, Params{})
	require.NoError(t, err)
	assert.Equal(t, " lorem lorem lorem", c.Text)
	assert.Equal(t, 3, c.Tokens)
	assert.Equal(t, "length", c.FinishReason)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 3, calls[0].NPredict)
	assert.Equal(t, float32(0), calls[0].Temperature)
}

func TestServerBackend_ZeroBudgetSkipsServer(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	b := openFake(t, f)
	c, err := b.Generate(testCtx(t), "p", 0, Params{})
	require.NoError(t, err)
	assert.Empty(t, c.Text)
	assert.Equal(t, 0, f.CompletionCalls())
}

func TestServerBackend_WaitsWhileLoading(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	f.NotReadyFor(2)
	start := time.Now()
	openFake(t, f)
	assert.GreaterOrEqual(t, time.Since(start), 2*readyPollInterval)
}

func TestServerBackend_ReadyTimeout(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	f.NotReadyFor(1000)
	_, err := Open(testCtx(t), Options{Kind: KindServer, ServerURL: f.URL, ReadyTimeout: 300 * time.Millisecond, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.True(t, IsDependencyUnavailable(err), "got %v", err)
}

func TestServerBackend_StatusErrors(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	b := openFake(t, f)

	f.SetFailStatus(http.StatusInternalServerError)
	_, err := b.Generate(testCtx(t), "p", 4, Params{})
	require.Error(t, err)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.Code)
	assert.Contains(t, err.Error(), "generation failed")

	f.SetFailStatus(http.StatusServiceUnavailable)
	_, err = b.Generate(testCtx(t), "p", 4, Params{})
	assert.True(t, IsDependencyUnavailable(err), "got %v", err)
}

func TestServerBackend_Cancellation(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	b := openFake(t, f)
	f.SetDelay(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Generate(ctx, "p", 4, Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerBackend_RequestTimeout(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	f.SetDelay(2 * time.Second)
	b, err := Open(testCtx(t), Options{Kind: KindServer, ServerURL: f.URL, RequestTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Generate(testCtx(t), "p", 4, Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerBackend_SendsAPIKey(t *testing.T) {
	var (
		mu   sync.Mutex
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/tokenize":
			_, _ = w.Write([]byte(`{"tokens":[1,2]}`))
		}
	}))
	defer srv.Close()
	b, err := Open(testCtx(t), Options{Kind: KindServer, ServerURL: srv.URL, APIKey: "secret", Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer b.Close()
	toks, err := b.Tokenize(testCtx(t), "x")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, toks)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
}

func TestServerBackend_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	b, err := Open(testCtx(t), Options{Kind: KindServer, ServerURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Tokenize(testCtx(t), "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decode /tokenize"), "got %v", err)
}

func TestServerBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	b := newServerBackend(Options{ServerURL: url, Logger: zerolog.Nop()})
	_, err := b.Tokenize(testCtx(t), "x")
	assert.True(t, IsDependencyUnavailable(err), "got %v", err)
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(testCtx(t), Options{Kind: "onnx"})
	require.Error(t, err)
}

func TestServerBackend_VerifiesServedModel(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	opts := Options{Kind: KindServer, ServerURL: f.URL, ModelID: "Equall/Saul-7B-Instruct-v1", ReadyTimeout: 2 * time.Second, Logger: zerolog.Nop()}

	b, err := Open(testCtx(t), opts)
	require.NoError(t, err)
	_ = b.Close()

	opts.ModelID = "no-such-org/no-such-checkpoint"
	_, err = Open(testCtx(t), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.Contains(t, err.Error(), enginetest.DefaultModelPath)

	f.SetModelPath("/models/mistral-7b-instruct.Q4_K_M.gguf")
	opts.ModelID = "Equall/Saul-7B-Instruct-v1"
	_, err = Open(testCtx(t), opts)
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestServerBackend_UnverifiableModelTrusted(t *testing.T) {
	f := enginetest.NewFakeServer()
	defer f.Close()
	opts := Options{Kind: KindServer, ServerURL: f.URL, ModelID: "no-such-org/no-such-checkpoint", ReadyTimeout: 2 * time.Second, Logger: zerolog.Nop()}

	f.SetModelPath("")
	b, err := Open(testCtx(t), opts)
	require.NoError(t, err, "empty model_path")
	_ = b.Close()

	f.DisableProps()
	b, err = Open(testCtx(t), opts)
	require.NoError(t, err, "no /props endpoint")
	_ = b.Close()
}
