package engine

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talion/internal/engine/enginetest"
)

// fakeServerEnv turns the re-executed test binary into a llama-server
// stand-in: "serve" runs enginetest.ListenAndServe, "exit" fails at startup.
const fakeServerEnv = "TALION_ENGINE_FAKE_LLAMA_SERVER"

func TestMain(m *testing.M) {
	switch os.Getenv(fakeServerEnv) {
	case "serve":
		runFakeLlamaServer(os.Args[1:])
	case "exit":
		fmt.Fprintln(os.Stderr, "error: failed to load model")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func runFakeLlamaServer(args []string) {
	var host, port, model string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--host":
			host = args[i+1]
		case "--port":
			port = args[i+1]
		case "-m":
			model = args[i+1]
		}
	}
	if err := enginetest.ListenAndServe(net.JoinHostPort(host, port), model); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}

func selfBin(t *testing.T) string {
	t.Helper()
	bin, err := os.Executable()
	require.NoError(t, err)
	return bin
}

func modelFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("gguf"), 0o644))
	return p
}

func spawnOpts(t *testing.T, modelPath string) Options {
	return Options{
		Kind:         KindSpawn,
		ModelID:      "Equall/Saul-7B-Instruct-v1",
		ModelPath:    modelPath,
		ServerBin:    selfBin(t),
		ReadyTimeout: 10 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

func TestSpawn_StartsServesAndStops(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv(fakeServerEnv, "serve")
	b, err := Open(testCtx(t), spawnOpts(t, modelFile(t, "saul-7b-instruct-v1.Q4_K_M.gguf")))
	require.NoError(t, err)
	sb, ok := b.(*spawnedBackend)
	require.True(t, ok, "got %T", b)
	assert.Positive(t, sb.PID())

	toks, err := b.Tokenize(testCtx(t), "Explain force majeure.")
	require.NoError(t, err)
	assert.Len(t, toks, 4)
	c, err := b.Generate(testCtx(t), "Explain force majeure.", 2, Params{})
	require.NoError(t, err)
	assert.Equal(t, " lorem lorem", c.Text)

	require.NoError(t, b.Close())
	select {
	case <-sb.exited:
	case <-time.After(10 * time.Second):
		t.Fatalf("llama server still running after Close")
	}
	require.NoError(t, b.Close())
}

func TestSpawn_EarlyExitReportsOutput(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv(fakeServerEnv, "exit")
	_, err := Open(testCtx(t), spawnOpts(t, modelFile(t, "saul-7b-instruct-v1.gguf")))
	require.Error(t, err)
	assert.True(t, IsDependencyUnavailable(err), "got %v", err)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestSpawn_ModelMismatchRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv(fakeServerEnv, "serve")
	_, err := Open(testCtx(t), spawnOpts(t, modelFile(t, "mistral-7b.gguf")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelMismatch), "got %v", err)
}

func TestSpawn_PreflightErrors(t *testing.T) {
	o := spawnOpts(t, "")
	_, err := Open(testCtx(t), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model path is empty")

	o = spawnOpts(t, modelFile(t, "saul-7b-instruct-v1.gguf"))
	o.ServerBin = filepath.Join(t.TempDir(), "llama-server")
	_, err = Open(testCtx(t), o)
	require.Error(t, err)
	assert.True(t, IsDependencyUnavailable(err), "got %v", err)

	o.ServerBin = t.TempDir()
	_, err = Open(testCtx(t), o)
	assert.True(t, IsDependencyUnavailable(err), "directory as binary: %v", err)
}

func TestSpawnArgs(t *testing.T) {
	args := spawnArgs(Options{
		ModelPath:   "/m/saul.gguf",
		ContextSize: 4096,
		GPULayers:   33,
		Threads:     8,
		ExtraArgs:   []string{"--flash-attn"},
	}, 9001)
	assert.Equal(t, "-m /m/saul.gguf --host 127.0.0.1 --port 9001 -c 4096 -ngl 33 -t 8 --flash-attn", strings.Join(args, " "))

	args = spawnArgs(Options{ModelPath: "/m/saul.gguf"}, 9002)
	assert.Equal(t, []string{"-m", "/m/saul.gguf", "--host", "127.0.0.1", "--port", "9002"}, args)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 8}
	_, _ = tb.Write([]byte("0123456789"))
	assert.Equal(t, "23456789", tb.String())
	_, _ = tb.Write([]byte("ab"))
	assert.Equal(t, "456789ab", tb.String())
}
