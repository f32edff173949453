//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"
)

// llamaBackend owns a model loaded in-process through go-llama.cpp. The
// bindings share one context per model, so calls are serialized.
type llamaBackend struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	log     zerolog.Logger
}

func openLlama(ctx context.Context, opts Options) (Backend, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.EnableF16Memory,
	}
	if opts.ContextSize > 0 {
		mo = append(mo, llama.SetContext(opts.ContextSize))
	}
	if opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(opts.GPULayers))
	}
	m, err := llama.New(opts.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	log := opts.Logger.With().Str("backend", KindLlama).Logger()
	log.Info().Str("path", opts.ModelPath).Int("gpu_layers", opts.GPULayers).Msg("model loaded in-process")
	return &llamaBackend{model: m, threads: max(1, opts.Threads), log: log}, nil
}

func (b *llamaBackend) Tokenize(ctx context.Context, text string) ([]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, toks, err := b.model.TokenizeString(text, llama.SetThreads(b.threads))
	if err != nil {
		return nil, err
	}
	if int(n) < len(toks) {
		toks = toks[:n]
	}
	out := make([]int, len(toks))
	for i, t := range toks {
		out[i] = int(t)
	}
	return out, nil
}

func (b *llamaBackend) Generate(ctx context.Context, prompt string, maxNew int, p Params) (Completion, error) {
	if maxNew <= 0 {
		return Completion{FinishReason: "length"}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return Completion{}, errors.New("llama model not initialized")
	}
	count := 0
	b.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		count++
		return true
	})
	defer b.model.SetTokenCallback(nil)
	text, err := b.model.Predict(prompt, predictOptions(maxNew, p, b.threads)...)
	if ctx.Err() != nil {
		return Completion{}, ctx.Err()
	}
	if err != nil {
		return Completion{}, err
	}
	finish := "stop"
	if count >= maxNew {
		finish = "length"
	}
	return Completion{Text: text, Tokens: count, FinishReason: finish}, nil
}

func (b *llamaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions maps sampling params onto go-llama.cpp options. Temperature
// is passed through as-is so 0 keeps greedy decoding.
func predictOptions(maxNew int, p Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(maxNew),
		llama.SetThreads(threads),
		llama.SetTemperature(p.Temperature),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
