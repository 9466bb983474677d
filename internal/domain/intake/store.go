package intake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoreConfig holds configuration for the session store
type StoreConfig struct {
	// IdleTTL is how long a session may stay untouched before eviction
	IdleTTL time.Duration
	// CleanupInterval is how often idle sessions are evicted
	CleanupInterval time.Duration
}

// DefaultStoreConfig returns sensible defaults
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Store keeps one controller per live session in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	reducer  *Reducer
	deps     Deps
	config   StoreConfig
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore creates a session store. Sessions share the reducer and deps.
func NewStore(reducer *Reducer, deps Deps, cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	deps = deps.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		sessions: make(map[string]*Controller),
		reducer:  reducer,
		deps:     deps,
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Create starts a new session.
func (s *Store) Create() *Controller {
	id := uuid.New().String()
	ctrl := NewController(NewSession(id, s.reducer), s.deps)

	s.mu.Lock()
	s.sessions[id] = ctrl
	n := len(s.sessions)
	s.mu.Unlock()

	s.deps.Recorder.SessionStarted()
	s.deps.Recorder.SessionsActive(n)
	s.logger.Debug("session started", zap.String("session_id", id))
	return ctrl
}

// Get returns the controller of a session.
func (s *Store) Get(id string) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// Delete drops a session. Unfinished sessions count as abandoned.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	ctrl, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.retire(ctrl)
	s.deps.Recorder.SessionsActive(n)
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start begins evicting idle sessions
func (s *Store) Start() {
	go s.cleanupLoop()
	s.logger.Info("session store started",
		zap.Duration("idle_ttl", s.config.IdleTTL),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))
}

// Stop stops the eviction loop
func (s *Store) Stop() {
	s.cancel()
	<-s.done
	s.logger.Info("session store stopped")
}

func (s *Store) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(time.Now()); n > 0 {
				s.logger.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// EvictIdle removes sessions idle for longer than the TTL at now.
func (s *Store) EvictIdle(now time.Time) int {
	var idle []*Controller

	s.mu.Lock()
	for id, ctrl := range s.sessions {
		if now.Sub(ctrl.LastActive()) > s.config.IdleTTL {
			idle = append(idle, ctrl)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, ctrl := range idle {
		s.retire(ctrl)
	}
	if len(idle) > 0 {
		s.deps.Recorder.SessionsActive(n)
	}
	return len(idle)
}

func (s *Store) retire(ctrl *Controller) {
	st := ctrl.State()
	if st.Terminal() {
		return
	}
	step := s.reducer.Table().Active(st).ID
	s.deps.Recorder.SessionAbandoned(step)
	s.logger.Debug("session abandoned",
		zap.String("session_id", ctrl.ID()),
		zap.String("step", string(step)))
}
