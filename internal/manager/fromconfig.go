package manager

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"talion/internal/config"
	"talion/internal/engine"
	"talion/internal/registry"
	"talion/pkg/types"
)

// ConfigFrom translates the process configuration into a ManagerConfig whose
// Opener starts the configured backend. For the spawn and in-process
// backends the GGUF file is resolved from ModelsDir when the load runs, so a
// missing file surfaces as a load error. A running llama-server must report
// a model file matching cfg.Model.
func ConfigFrom(cfg config.Config, log zerolog.Logger) ManagerConfig {
	model := types.Model{ID: cfg.Model, Name: filepath.Base(cfg.Model)}
	opts := engine.Options{
		Kind:           cfg.Backend,
		ModelID:        cfg.Model,
		ServerURL:      cfg.LlamaURL,
		APIKey:         cfg.LlamaAPIKey,
		RequestTimeout: seconds(cfg.RequestTimeoutSeconds),
		ConnectTimeout: seconds(cfg.ConnectTimeoutSeconds),
		ReadyTimeout:   seconds(cfg.ReadyTimeoutSeconds),
		ServerBin:      cfg.LlamaBin,
		ExtraArgs:      cfg.LlamaExtraArgs,
		ContextSize:    cfg.LlamaCtx,
		Threads:        cfg.LlamaThreads,
		GPULayers:      cfg.LlamaGPULayers,
		Logger:         log,
	}
	open := func(ctx context.Context) (engine.Backend, error) {
		o := opts
		if o.Kind == engine.KindLlama || o.Kind == engine.KindSpawn {
			resolved, err := registry.Resolve(cfg.ModelsDir, cfg.Model)
			if err != nil {
				return nil, err
			}
			o.ModelPath = resolved.Path
			log.Info().Str("model", cfg.Model).Str("path", resolved.Path).Msg("resolved model file")
		}
		return engine.Open(ctx, o)
	}
	return ManagerConfig{
		Model:           model,
		Backend:         cfg.Backend,
		LoadMode:        cfg.LoadMode,
		Open:            open,
		Parallelism:     cfg.Parallelism,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		MaxWait:         time.Duration(cfg.MaxWaitMS) * time.Millisecond,
		GenerateTimeout: seconds(cfg.GenerateTimeoutSeconds),
		SpecialTokens:   cfg.SpecialTokens,
		CacheEnabled:    cfg.CacheEnabled,
		CacheTTL:        seconds(cfg.CacheTTLSeconds),
		CacheCapacity:   cfg.CacheCapacity,
		Logger:          &log,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
