package manager

import "time"

// State represents the model lifecycle. Transitions are
// unloaded → loading → ready, with loading → unloaded on a failed load.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateDraining State = "draining"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State    State
	ModelID  string
	Err      string
	LoadedAt time.Time
}

// Result is the outcome of one generation.
type Result struct {
	// ID identifies the generation in logs and response headers.
	ID string
	// Text is the decoded output sequence, prompt included.
	Text             string
	PromptTokens     int
	CompletionTokens int
	// FinishReason is "stop" or "length" from the backend, "truncated" when
	// max_length left no room for new tokens, or "cached".
	FinishReason string
	Cached       bool
	Duration     time.Duration
}
