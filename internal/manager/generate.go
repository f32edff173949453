package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"talion/internal/engine"
	"talion/pkg/types"
)

// Generate runs the full pipeline for one request: ensure the model is
// loaded, wait for admission, tokenize the prompt, generate until the total
// sequence reaches req.MaxLength tokens, and decode the prompt plus the
// continuation with special tokens removed.
//
// MaxLength bounds prompt and continuation together. When the prompt alone
// reaches it, nothing is generated and the decoded prompt is returned.
// Inputs are not validated: an empty prompt or a non-positive MaxLength is
// passed through.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (Result, error) {
	start := time.Now()
	res := Result{ID: uuid.NewString()}
	if m.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.generateTimeout)
		defer cancel()
	}
	if err := m.Load(ctx); err != nil {
		return res, err
	}

	greedy := req.Temperature <= 0
	key := cacheKey(req.Prompt, req.MaxLength)
	if greedy {
		if text, ok := m.cacheGet(key); ok {
			res.Text = text
			res.Cached = true
			res.FinishReason = "cached"
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	be := m.currentBackend()
	if be == nil {
		return res, engine.ErrDependencyUnavailable("model not loaded")
	}
	toks, err := be.Tokenize(ctx, req.Prompt)
	if err != nil {
		return res, stageError("tokenize", err)
	}
	res.PromptTokens = len(toks)

	budget := req.MaxLength - len(toks)
	if budget <= 0 {
		res.Text = m.stripSpecial(req.Prompt)
		res.FinishReason = "truncated"
	} else {
		comp, err := be.Generate(ctx, req.Prompt, budget, engine.Params{
			Temperature: float32(req.Temperature),
			TopP:        float32(req.TopP),
			TopK:        req.TopK,
			Seed:        int(req.Seed),
		})
		if err != nil {
			return res, stageError("generate", err)
		}
		res.Text = m.stripSpecial(req.Prompt + comp.Text)
		res.CompletionTokens = comp.Tokens
		res.FinishReason = comp.FinishReason
	}
	res.Duration = time.Since(start)

	m.generationsTotal.Add(1)
	generationDuration.WithLabelValues(res.FinishReason).Observe(res.Duration.Seconds())
	generatedTokens.Add(float64(res.CompletionTokens))
	if greedy {
		m.cacheSet(key, res.Text)
	}
	m.publisher.Publish(Event{Name: "generate_done", ModelID: m.model.ID, Fields: map[string]any{
		"id":                res.ID,
		"prompt_tokens":     res.PromptTokens,
		"completion_tokens": res.CompletionTokens,
		"finish_reason":     res.FinishReason,
	}})
	return res, nil
}

// stageError wraps backend failures with the pipeline stage, leaving context
// and dependency errors recognizable to callers.
func stageError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// stripSpecial removes special token text from decoded output.
func (m *Manager) stripSpecial(s string) string {
	for _, tok := range m.special {
		if tok != "" {
			s = strings.ReplaceAll(s, tok, "")
		}
	}
	return s
}
