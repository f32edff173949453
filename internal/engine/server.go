package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"talion/internal/registry"
)

const readyPollInterval = 250 * time.Millisecond

// serverBackend implements Backend by talking to a running llama.cpp
// llama-server over its native /tokenize and /completion endpoints.
type serverBackend struct {
	baseURL      string
	apiKey       string
	modelID      string
	reqTimeout   time.Duration
	readyTimeout time.Duration
	httpClient   *http.Client
	log          zerolog.Logger
}

func newServerBackend(opts Options) *serverBackend {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: every call carries its own context deadline.
	return &serverBackend{
		baseURL:      strings.TrimRight(opts.ServerURL, "/"),
		apiKey:       opts.APIKey,
		modelID:      opts.ModelID,
		reqTimeout:   opts.RequestTimeout,
		readyTimeout: opts.ReadyTimeout,
		httpClient:   &http.Client{Transport: tr},
		log:          opts.Logger.With().Str("backend", KindServer).Logger(),
	}
}

// waitReady polls /health until the server reports ok, then checks the
// served model. llama-server answers 503 while the model is still loading.
func (b *serverBackend) waitReady(ctx context.Context) error {
	if b.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.readyTimeout)
		defer cancel()
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = b.health(ctx)
		if lastErr == nil {
			b.log.Info().Str("url", b.baseURL).Int("attempts", attempt).Msg("llama server ready")
			return b.verifyModel(ctx)
		}
		b.log.Debug().Err(lastErr).Int("attempt", attempt).Msg("llama server not ready")
		select {
		case <-ctx.Done():
			return ErrDependencyUnavailable(fmt.Sprintf("llama server at %s not ready: %v", b.baseURL, lastErr))
		case <-time.After(readyPollInterval):
		}
	}
}

func (b *serverBackend) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	b.authorize(req)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: resp.Status}
	}
	return nil
}

type propsResponse struct {
	ModelPath string `json:"model_path"`
}

// verifyModel compares /props model_path with the configured model id.
// Servers without /props, or without model_path in it, are trusted.
func (b *serverBackend) verifyModel(ctx context.Context) error {
	if b.modelID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/props", nil)
	if err != nil {
		return err
	}
	b.authorize(req)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return ErrDependencyUnavailable(fmt.Sprintf("llama server props: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		b.log.Warn().Str("model", b.modelID).Msg("llama server has no /props; served model not verified")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: resp.Status}
	}
	var props propsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&props); err != nil {
		return fmt.Errorf("decode /props response: %w", err)
	}
	if props.ModelPath == "" {
		b.log.Warn().Str("model", b.modelID).Msg("llama server did not report model_path; served model not verified")
		return nil
	}
	if !registry.Matches(b.modelID, props.ModelPath) {
		return fmt.Errorf("%w: %s has %s loaded, want %s", ErrModelMismatch, b.baseURL, props.ModelPath, b.modelID)
	}
	b.log.Info().Str("model", b.modelID).Str("model_path", props.ModelPath).Msg("served model verified")
	return nil
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

func (b *serverBackend) Tokenize(ctx context.Context, text string) ([]int, error) {
	var out tokenizeResponse
	if err := b.post(ctx, "/tokenize", tokenizeRequest{Content: text, AddSpecial: true}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// completionRequest is the payload for llama-server's native /completion.
// Temperature is always sent: the server default is not greedy.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
	CachePrompt bool     `json:"cache_prompt"`
}

type completionResponse struct {
	Content         string `json:"content"`
	TokensPredicted int    `json:"tokens_predicted"`
	StoppedEOS      bool   `json:"stopped_eos"`
	StoppedLimit    bool   `json:"stopped_limit"`
	StoppedWord     bool   `json:"stopped_word"`
	StopType        string `json:"stop_type"`
}

func (b *serverBackend) Generate(ctx context.Context, prompt string, maxNew int, p Params) (Completion, error) {
	if maxNew <= 0 {
		return Completion{FinishReason: "length"}, nil
	}
	if b.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.reqTimeout)
		defer cancel()
	}
	payload := completionRequest{
		Prompt:      prompt,
		NPredict:    maxNew,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		TopK:        p.TopK,
		Seed:        p.Seed,
		Stop:        p.Stop,
		CachePrompt: true,
	}
	var out completionResponse
	if err := b.post(ctx, "/completion", payload, &out); err != nil {
		return Completion{}, err
	}
	finish := "stop"
	if out.StoppedLimit || out.StopType == "limit" {
		finish = "length"
	}
	return Completion{Text: out.Content, Tokens: out.TokensPredicted, FinishReason: finish}, nil
}

func (b *serverBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func (b *serverBackend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

func (b *serverBackend) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)
	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var nerr net.Error
		if errors.As(err, &nerr) || errors.Is(err, io.EOF) {
			return ErrDependencyUnavailable(fmt.Sprintf("llama server unreachable: %v", err))
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return ErrDependencyUnavailable(serr.Error())
		}
		return serr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	b.log.Debug().Str("path", path).Dur("dur", time.Since(start)).Msg("llama server call")
	return nil
}
