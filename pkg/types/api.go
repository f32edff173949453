package types

// Model describes a model resolved from the local registry.
type Model struct {
	// Model identifier, usually a hub repository name.
	// example: Equall/Saul-7B-Instruct-v1
	ID string `json:"id" example:"Equall/Saul-7B-Instruct-v1"`
	// Display name.
	Name string `json:"name,omitempty"`
	// Absolute path of the GGUF file backing the model (empty in server mode).
	Path string `json:"path,omitempty"`
}

// GenerateRequest is the input of POST /generate/.
type GenerateRequest struct {
	// Prompt text. Required, but may be empty.
	// example: Explain force majeure.
	Prompt string `json:"prompt" example:"Explain force majeure."`
	// Upper bound on the total sequence length in tokens, prompt included.
	// example: 100
	MaxLength int `json:"max_length" example:"100"`
	// Sampling temperature; 0 selects greedy decoding.
	// example: 0
	Temperature float64 `json:"temperature,omitempty" example:"0"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Random seed; 0 lets the runtime choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// GenerateResponse is returned by POST /generate/ on success.
type GenerateResponse struct {
	// Decoded output sequence. Echoes the prompt.
	// example: Explain force majeure. Force majeure is a contractual clause...
	GeneratedText string `json:"generated_text" example:"Explain force majeure. Force majeure is a contractual clause..."`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompt is required
	Error string `json:"error" example:"prompt is required"`
	// HTTP status code.
	// example: 422
	Code int `json:"code" example:"422"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Model served by this process.
	Model Model `json:"model"`
	// Inference backend kind (server or llama).
	// example: server
	Backend string `json:"backend" example:"server"`
	// Load mode (eager or lazy).
	// example: eager
	LoadMode string `json:"load_mode" example:"eager"`
	// Lifecycle state (unloaded, loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last load error, if any.
	LastError string `json:"last_error,omitempty"`
	// Maximum concurrent generations.
	// example: 1
	Parallelism int `json:"parallelism" example:"1"`
	// Generations currently running.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Requests admitted to the queue, running or waiting.
	// example: 3
	QueueLen int `json:"queue_len" example:"3"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Total successful model loads (0 or 1).
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Total completed generations.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
	// Total requests rejected by admission control.
	// example: 0
	RejectedTotal uint64 `json:"rejected_total" example:"0"`
	// Entries currently held by the completion cache.
	// example: 0
	CacheEntries int `json:"cache_entries" example:"0"`
	// Unix time the model finished loading (0 while unloaded).
	// example: 1700000000
	LoadedAtUnix int64 `json:"loaded_at_unix" example:"1700000000"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
