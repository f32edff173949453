// Package engine adapts external llama.cpp runtimes to the small Backend
// surface the manager drives: tokenize, generate, close.
//
// Three runtimes are supported:
//
//   - server: a running llama.cpp llama-server reached over HTTP (default build).
//     When ModelID is set, the server's /props model_path must match it.
//   - spawn: a llama-server child process started on a free loopback port
//     with the resolved GGUF file, stopped on Close.
//   - llama: in-process go-llama.cpp bindings, compiled with `-tags=llama`.
//     Without the tag, opening this kind fails with a dependency error.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Kinds of backend accepted by Open.
const (
	KindServer = "server"
	KindSpawn  = "spawn"
	KindLlama  = "llama"
)

// Backend is a loaded model together with its tokenizer. Implementations must
// be safe for concurrent use and must return when ctx is canceled.
type Backend interface {
	// Tokenize returns the token ids of text, including the BOS token when the
	// model prepends one.
	Tokenize(ctx context.Context, text string) ([]int, error)
	// Generate continues prompt for at most maxNew tokens and returns the newly
	// generated text only.
	Generate(ctx context.Context, prompt string, maxNew int, p Params) (Completion, error)
	// Close releases the model.
	Close() error
}

// Params are sampling parameters. The zero value selects greedy decoding.
type Params struct {
	Temperature float32
	TopP        float32
	TopK        int
	Seed        int
	Stop        []string
}

// Completion is the result of a generation call.
type Completion struct {
	Text         string
	Tokens       int
	FinishReason string // "stop" or "length"
}

// Options configure Open.
type Options struct {
	Kind string
	// ModelID is the configured model; server backends verify it against
	// the running llama-server.
	ModelID string

	// llama-server
	ServerURL      string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	ReadyTimeout   time.Duration

	// spawned llama-server; ServerBin empty means discover it
	ServerBin string
	ExtraArgs []string

	// go-llama.cpp and spawn
	ModelPath   string
	ContextSize int
	Threads     int
	GPULayers   int

	Logger zerolog.Logger
}

// Open connects to or loads the configured runtime and blocks until it can
// serve requests.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindServer, "":
		b := newServerBackend(opts)
		if err := b.waitReady(ctx); err != nil {
			return nil, err
		}
		return b, nil
	case KindSpawn:
		return openSpawn(ctx, opts)
	case KindLlama:
		return openLlama(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", opts.Kind)
	}
}
