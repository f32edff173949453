package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"talion/internal/engine"
	"talion/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultParallelism   = 1
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultCacheTTL      = 10 * time.Minute
	defaultCacheCapacity = 256
)

// Opener produces the inference backend. It is called at most once per
// successful load.
type Opener func(ctx context.Context) (engine.Backend, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Model    types.Model
	Backend  string
	LoadMode string
	Open     Opener

	Parallelism     int
	MaxQueueDepth   int
	MaxWait         time.Duration
	GenerateTimeout time.Duration

	// SpecialTokens are removed from decoded output.
	SpecialTokens []string

	CacheEnabled  bool
	CacheTTL      time.Duration
	CacheCapacity int

	Publisher EventPublisher
	Logger    *zerolog.Logger
}
