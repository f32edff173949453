package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultModel is the checkpoint served when no model is configured.
const DefaultModel = "Equall/Saul-7B-Instruct-v1"

// Backend kinds.
const (
	BackendServer = "server"
	BackendSpawn  = "spawn"
	BackendLlama  = "llama"
)

// Load modes.
const (
	LoadEager = "eager"
	LoadLazy  = "lazy"
)

// Config holds runtime parameters for the service.
// Fields absent from a config file keep the values from Default.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	Model     string `json:"model" yaml:"model" toml:"model"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	LoadMode  string `json:"load_mode" yaml:"load_mode" toml:"load_mode"`

	// llama-server backend
	LlamaURL              string `json:"llama_url" yaml:"llama_url" toml:"llama_url"`
	LlamaAPIKey           string `json:"llama_api_key" yaml:"llama_api_key" toml:"llama_api_key"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	ReadyTimeoutSeconds   int    `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds"`

	// spawned llama-server; empty bin means PATH lookup
	LlamaBin       string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaExtraArgs []string `json:"llama_extra_args" yaml:"llama_extra_args" toml:"llama_extra_args"`

	// llama and spawn backends
	LlamaCtx       int `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers int `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`

	// admission
	Parallelism            int `json:"parallelism" yaml:"parallelism" toml:"parallelism"`
	MaxQueueDepth          int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMS              int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`

	// generation
	DefaultMaxLength int      `json:"default_max_length" yaml:"default_max_length" toml:"default_max_length"`
	SpecialTokens    []string `json:"special_tokens" yaml:"special_tokens" toml:"special_tokens"`

	// completion cache
	CacheEnabled    bool `json:"cache_enabled" yaml:"cache_enabled" toml:"cache_enabled"`
	CacheTTLSeconds int  `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
	CacheCapacity   int  `json:"cache_capacity" yaml:"cache_capacity" toml:"cache_capacity"`

	// HTTP
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods  []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders  []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
	Swagger      bool     `json:"swagger" yaml:"swagger" toml:"swagger"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Addr:                  ":8000",
		Model:                 DefaultModel,
		ModelsDir:             "~/models/llm",
		Backend:               BackendServer,
		LoadMode:              LoadEager,
		LlamaURL:              "http://127.0.0.1:8080",
		RequestTimeoutSeconds: 0,
		ConnectTimeoutSeconds: 5,
		ReadyTimeoutSeconds:   120,
		LlamaCtx:              4096,
		Parallelism:           1,
		MaxQueueDepth:         32,
		MaxWaitMS:             30000,
		DefaultMaxLength:      100,
		SpecialTokens:         []string{"<s>", "</s>", "<unk>"},
		CacheTTLSeconds:       600,
		CacheCapacity:         256,
		MaxBodyBytes:          1 << 20,
		CORSMethods:           []string{"GET", "POST", "OPTIONS"},
		CORSHeaders:           []string{"Accept", "Content-Type", "X-Log-Level"},
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load reads a configuration file based on its extension on top of Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TALION_* variables found through lookup.
// Every field has a variable named after its config key in upper case
// (max_wait_ms -> TALION_MAX_WAIT_MS); lists are comma separated.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("TALION_ADDR", &c.Addr)
	str("TALION_MODEL", &c.Model)
	str("TALION_MODELS_DIR", &c.ModelsDir)
	str("TALION_BACKEND", &c.Backend)
	str("TALION_LOAD_MODE", &c.LoadMode)
	str("TALION_LLAMA_URL", &c.LlamaURL)
	str("TALION_LLAMA_API_KEY", &c.LlamaAPIKey)
	str("TALION_LLAMA_BIN", &c.LlamaBin)
	str("TALION_LOG_LEVEL", &c.LogLevel)
	str("TALION_LOG_FORMAT", &c.LogFormat)
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = SplitCSV(v)
		}
	}
	list("TALION_SPECIAL_TOKENS", &c.SpecialTokens)
	list("TALION_CORS_ORIGINS", &c.CORSOrigins)
	list("TALION_CORS_METHODS", &c.CORSMethods)
	list("TALION_CORS_HEADERS", &c.CORSHeaders)
	list("TALION_LLAMA_EXTRA_ARGS", &c.LlamaExtraArgs)

	nums := []struct {
		key string
		dst *int
	}{
		{"TALION_REQUEST_TIMEOUT_SECONDS", &c.RequestTimeoutSeconds},
		{"TALION_CONNECT_TIMEOUT_SECONDS", &c.ConnectTimeoutSeconds},
		{"TALION_READY_TIMEOUT_SECONDS", &c.ReadyTimeoutSeconds},
		{"TALION_LLAMA_CTX", &c.LlamaCtx},
		{"TALION_LLAMA_THREADS", &c.LlamaThreads},
		{"TALION_LLAMA_GPU_LAYERS", &c.LlamaGPULayers},
		{"TALION_PARALLELISM", &c.Parallelism},
		{"TALION_MAX_QUEUE_DEPTH", &c.MaxQueueDepth},
		{"TALION_MAX_WAIT_MS", &c.MaxWaitMS},
		{"TALION_GENERATE_TIMEOUT_SECONDS", &c.GenerateTimeoutSeconds},
		{"TALION_DEFAULT_MAX_LENGTH", &c.DefaultMaxLength},
		{"TALION_CACHE_TTL_SECONDS", &c.CacheTTLSeconds},
		{"TALION_CACHE_CAPACITY", &c.CacheCapacity},
	}
	for _, n := range nums {
		if err := num(n.key, n.dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("TALION_MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TALION_MAX_BODY_BYTES: %w", err)
		}
		c.MaxBodyBytes = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"TALION_CORS_ENABLED", &c.CORSEnabled},
		{"TALION_CACHE_ENABLED", &c.CacheEnabled},
		{"TALION_SWAGGER", &c.Swagger},
	}
	for _, b := range bools {
		if err := boolean(b.key, b.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is empty")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is empty")
	}
	switch c.Backend {
	case BackendServer:
		if strings.TrimSpace(c.LlamaURL) == "" {
			return fmt.Errorf("llama_url is required for backend %q", c.Backend)
		}
	case BackendSpawn, BackendLlama:
	default:
		return fmt.Errorf("unknown backend %q (want %s|%s|%s)", c.Backend, BackendServer, BackendSpawn, BackendLlama)
	}
	switch c.LoadMode {
	case LoadEager, LoadLazy:
	default:
		return fmt.Errorf("unknown load_mode %q (want %s|%s)", c.LoadMode, LoadEager, LoadLazy)
	}
	if c.Parallelism < 0 || c.MaxQueueDepth < 0 || c.MaxWaitMS < 0 {
		return fmt.Errorf("admission settings must not be negative")
	}
	if c.Parallelism > 0 && c.MaxQueueDepth > 0 && c.MaxQueueDepth < c.Parallelism {
		return fmt.Errorf("max_queue_depth (%d) must be >= parallelism (%d)", c.MaxQueueDepth, c.Parallelism)
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty
// items.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
