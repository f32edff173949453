package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"talion/internal/engine"
	"talion/pkg/types"
)

// Manager holds the single served model. Construct it with New and share the
// pointer; the backend handle is immutable once loaded.
type Manager struct {
	mu       sync.RWMutex
	state    State
	err      string
	backend  engine.Backend
	loadedAt time.Time
	closing  bool

	model       types.Model
	backendKind string
	loadMode    string
	open        Opener
	loads       singleflight.Group

	// Queueing primitives
	genCh   chan struct{} // parallelism slots
	queueCh chan struct{} // queue slots, running requests included
	maxWait time.Duration

	generateTimeout time.Duration
	special         []string
	cache           *ttlcache.Cache[string, string]

	loadsTotal       atomic.Uint64
	generationsTotal atomic.Uint64
	rejectedTotal    atomic.Uint64

	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time
}

// New constructs a Manager from ManagerConfig. The model is not loaded until
// Load is called.
func New(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:           StateUnloaded,
		model:           cfg.Model,
		backendKind:     cfg.Backend,
		loadMode:        cfg.LoadMode,
		open:            cfg.Open,
		generateTimeout: cfg.GenerateTimeout,
		special:         append([]string(nil), cfg.SpecialTokens...),
		publisher:       cfg.Publisher,
		startTime:       time.Now(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	if m.publisher == nil {
		m.publisher = NewLogPublisher(m.log)
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	if depth < parallelism {
		depth = parallelism
	}
	m.genCh = make(chan struct{}, parallelism)
	m.queueCh = make(chan struct{}, depth)
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.CacheEnabled {
		m.cache = newCompletionCache(cfg.CacheTTL, cfg.CacheCapacity)
	}
	return m
}

// Model returns the served model description.
func (m *Manager) Model() types.Model { return m.model }

// Ready reports whether the model is loaded and accepting work.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// currentBackend returns the loaded backend, or nil.
func (m *Manager) currentBackend() engine.Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady && m.state != StateDraining {
		return nil
	}
	return m.backend
}
