package main

import (
	"github.com/spf13/cobra"

	"talion/internal/config"
)

// overrides binds command-line flags to config fields. Only flags the user
// actually set are copied over the file and environment values.
type overrides struct {
	vals    config.Config
	setters map[string]func(*config.Config)
}

func newOverrides() *overrides {
	return &overrides{vals: config.Default(), setters: map[string]func(*config.Config){}}
}

func (o *overrides) str(cmd *cobra.Command, name, usage string, field func(*config.Config) *string) {
	p := field(&o.vals)
	cmd.Flags().StringVar(p, name, *p, usage)
	o.setters[name] = func(dst *config.Config) { *field(dst) = *p }
}

func (o *overrides) num(cmd *cobra.Command, name, usage string, field func(*config.Config) *int) {
	p := field(&o.vals)
	cmd.Flags().IntVar(p, name, *p, usage)
	o.setters[name] = func(dst *config.Config) { *field(dst) = *p }
}

func (o *overrides) flag(cmd *cobra.Command, name, usage string, field func(*config.Config) *bool) {
	p := field(&o.vals)
	cmd.Flags().BoolVar(p, name, *p, usage)
	o.setters[name] = func(dst *config.Config) { *field(dst) = *p }
}

func (o *overrides) list(cmd *cobra.Command, name, usage string, field func(*config.Config) *[]string) {
	p := field(&o.vals)
	cmd.Flags().StringSliceVar(p, name, *p, usage)
	o.setters[name] = func(dst *config.Config) { *field(dst) = append([]string(nil), (*p)...) }
}

func (o *overrides) apply(cmd *cobra.Command, dst *config.Config) {
	for name, set := range o.setters {
		if cmd.Flags().Changed(name) {
			set(dst)
		}
	}
}

// bindModelFlags registers the flags shared by serve and generate.
func bindModelFlags(cmd *cobra.Command, o *overrides) {
	o.str(cmd, "model", "Model identifier (hub name, GGUF id or path)", func(c *config.Config) *string { return &c.Model })
	o.str(cmd, "models-dir", "Directory to search for *.gguf files (spawn and llama backends)", func(c *config.Config) *string { return &c.ModelsDir })
	o.str(cmd, "backend", "Inference backend: server|spawn|llama", func(c *config.Config) *string { return &c.Backend })
	o.str(cmd, "llama-url", "llama-server base URL (server backend)", func(c *config.Config) *string { return &c.LlamaURL })
	o.str(cmd, "llama-bin", "llama-server binary, empty=search PATH (spawn backend)", func(c *config.Config) *string { return &c.LlamaBin })
	o.list(cmd, "llama-extra-args", "Extra llama-server arguments (spawn backend)", func(c *config.Config) *[]string { return &c.LlamaExtraArgs })
	o.num(cmd, "ready-timeout", "Seconds to wait for llama-server to finish loading", func(c *config.Config) *int { return &c.ReadyTimeoutSeconds })
	o.num(cmd, "llama-ctx", "Context size (spawn and llama backends)", func(c *config.Config) *int { return &c.LlamaCtx })
	o.num(cmd, "llama-threads", "CPU threads, 0=auto (spawn and llama backends)", func(c *config.Config) *int { return &c.LlamaThreads })
	o.num(cmd, "llama-gpu-layers", "Layers offloaded to GPU (spawn and llama backends)", func(c *config.Config) *int { return &c.LlamaGPULayers })
	o.num(cmd, "generate-timeout", "Per-request generation timeout in seconds, 0=none", func(c *config.Config) *int { return &c.GenerateTimeoutSeconds })
	o.list(cmd, "special-tokens", "Token strings stripped from output", func(c *config.Config) *[]string { return &c.SpecialTokens })
}

// bindServeFlags registers the HTTP and admission flags.
func bindServeFlags(cmd *cobra.Command, o *overrides) {
	o.str(cmd, "addr", "HTTP listen address", func(c *config.Config) *string { return &c.Addr })
	o.str(cmd, "load-mode", "Model load mode: eager|lazy", func(c *config.Config) *string { return &c.LoadMode })
	o.num(cmd, "parallelism", "Maximum concurrent generations", func(c *config.Config) *int { return &c.Parallelism })
	o.num(cmd, "max-queue-depth", "Maximum admitted requests, running ones included", func(c *config.Config) *int { return &c.MaxQueueDepth })
	o.num(cmd, "max-wait-ms", "Maximum wait for a queue or generation slot", func(c *config.Config) *int { return &c.MaxWaitMS })
	o.num(cmd, "default-max-length", "max_length used when a request sends none", func(c *config.Config) *int { return &c.DefaultMaxLength })
	o.flag(cmd, "cache", "Cache greedy completions", func(c *config.Config) *bool { return &c.CacheEnabled })
	o.flag(cmd, "swagger", "Serve the OpenAPI UI under /swagger/", func(c *config.Config) *bool { return &c.Swagger })
	o.flag(cmd, "cors", "Enable CORS", func(c *config.Config) *bool { return &c.CORSEnabled })
	o.list(cmd, "cors-origins", "Allowed CORS origins", func(c *config.Config) *[]string { return &c.CORSOrigins })
}
