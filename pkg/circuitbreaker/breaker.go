// Package circuitbreaker wraps sony/gobreaker with OpenTelemetry spans and
// counters. The intake API guards the submission store with one breaker; the
// fulfillment worker keeps one per pharmacy.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State is the breaker state as exposed to callers and metrics.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Gauge encodes the state for a numeric metric: 0 closed, 1 open, 2 half-open.
func (s State) Gauge() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	}
	return 0
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	}
	return StateClosed
}

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// Config holds breaker settings.
type Config struct {
	Name string
	// MaxRequests is how many trial calls a half-open breaker lets through.
	MaxRequests uint32
	// Interval clears the counts of a closed breaker periodically.
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration
	// FailureThreshold trips the breaker on this many consecutive failures
	// while fewer than MinRequests calls were counted.
	FailureThreshold uint32
	// FailureRatio trips the breaker once MinRequests calls were counted.
	FailureRatio float64
	MinRequests  uint32
	// IsSuccessful classifies errors that say nothing about the dependency's
	// health, such as a duplicate order. Nil counts only a nil error as success.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns defaults for a pharmacy or store dependency.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// shouldTrip applies the threshold below MinRequests and the ratio above it.
func (c Config) shouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests {
		return counts.ConsecutiveFailures >= c.FailureThreshold
	}
	return float64(counts.TotalFailures) >= c.FailureRatio*float64(counts.Requests)
}

// instruments are shared by all breakers of a process; name is an attribute.
type instruments struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	rejected metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	sharedInstr     *instruments
	instrumentsErr  error
)

func loadInstruments() (*instruments, error) {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("circuit-breaker")
		in := &instruments{}
		var errs []error
		var err error
		in.calls, err = meter.Int64Counter("circuit_breaker_requests_total",
			metric.WithDescription("Calls attempted through a circuit breaker"))
		errs = append(errs, err)
		in.failures, err = meter.Int64Counter("circuit_breaker_failures_total",
			metric.WithDescription("Calls that returned an error"))
		errs = append(errs, err)
		in.rejected, err = meter.Int64Counter("circuit_breaker_rejected_total",
			metric.WithDescription("Calls refused by an open circuit"))
		errs = append(errs, err)
		sharedInstr, instrumentsErr = in, errors.Join(errs...)
	})
	return sharedInstr, instrumentsErr
}

// CircuitBreaker guards one dependency.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer
	instr  *instruments

	mu       sync.RWMutex
	onChange func(name string, to State)
}

// New creates a breaker from cfg.
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	instr, err := loadInstruments()
	if err != nil {
		return nil, fmt.Errorf("breaker instruments: %w", err)
	}

	c := &CircuitBreaker{
		name:     cfg.Name,
		logger:   logger.With(zap.String("breaker", cfg.Name)),
		tracer:   otel.Tracer("circuit-breaker"),
		instr:    instr,
		onChange: func(string, State) {},
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.shouldTrip,
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: c.changed,
	})
	return c, nil
}

// OnStateChange registers the callback for state transitions.
func (c *CircuitBreaker) OnStateChange(fn func(name string, to State)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *CircuitBreaker) changed(_ string, from, to gobreaker.State) {
	c.mu.RLock()
	notify := c.onChange
	c.mu.RUnlock()

	level := zap.WarnLevel
	if to == gobreaker.StateClosed {
		level = zap.InfoLevel
	}
	c.logger.Check(level, "circuit breaker state changed").Write(
		zap.String("from", string(stateOf(from))),
		zap.String("to", string(stateOf(to))))
	notify(c.name, stateOf(to))
}

// Name returns the breaker name.
func (c *CircuitBreaker) Name() string { return c.name }

// State returns the current state.
func (c *CircuitBreaker) State() State { return stateOf(c.cb.State()) }

// Counts returns the counts of the current interval.
func (c *CircuitBreaker) Counts() gobreaker.Counts { return c.cb.Counts() }

// Do runs fn through c. Calls refused by an open or saturated half-open
// breaker return an error wrapping ErrOpen without calling fn.
func Do[T any](ctx context.Context, c *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker "+c.name,
		trace.WithAttributes(attribute.String("breaker.name", c.name)))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("name", c.name))
	c.instr.calls.Add(ctx, 1, attrs)

	var out T
	_, err := c.cb.Execute(func() (any, error) {
		var err error
		out, err = fn(ctx)
		return nil, err
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.instr.rejected.Add(ctx, 1, attrs)
		span.SetAttributes(attribute.Bool("breaker.rejected", true))
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrOpen, c.name, err)
	default:
		c.instr.failures.Add(ctx, 1, attrs)
		span.RecordError(err)
		return out, err
	}
}

// Manager keeps one breaker per name, created on first use.
type Manager struct {
	config func(name string) Config
	logger *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	onChange func(name string, to State)
}

// NewManager creates a manager. config supplies the settings for a new
// breaker; nil uses DefaultConfig.
func NewManager(config func(name string) Config, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
		onChange: func(string, State) {},
	}
}

// OnStateChange registers a callback for transitions of every breaker,
// including those created earlier.
func (m *Manager) OnStateChange(fn func(name string, to State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) notify(name string, to State) {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	fn(name, to)
}

// Get returns the breaker for name, creating it if needed.
func (m *Manager) Get(name string) (*CircuitBreaker, error) {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb, nil
	}
	cfg := m.config(name)
	cfg.Name = name
	cb, err := New(cfg, m.logger)
	if err != nil {
		return nil, err
	}
	cb.OnStateChange(m.notify)
	m.breakers[name] = cb
	return cb, nil
}

// HealthStatus describes one breaker.
type HealthStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

// Health returns the status of all breakers sorted by name.
func (m *Manager) Health() []HealthStatus {
	m.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.RUnlock()

	// Reading the state may fire a transition, which calls back into m.
	out := make([]HealthStatus, 0, len(breakers))
	for _, cb := range breakers {
		counts, state := cb.Counts(), cb.State()
		out = append(out, HealthStatus{
			Name:     cb.name,
			State:    state,
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
			Healthy:  state == StateClosed,
		})
	}

	slices.SortFunc(out, func(a, b HealthStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}
