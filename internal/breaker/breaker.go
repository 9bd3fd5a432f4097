// Package breaker isolates failing LLM providers behind per-key circuit
// breakers.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bimmerbailey/triage/internal/config"
)

// State is the position of a breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MinTimeout is the floor applied to operation timeouts derived from the
// request timeout.
const MinTimeout = 120 * time.Second

var (
	// ErrOpen is returned by Execute while the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrTimeout is returned when an operation outlives the breaker timeout.
	ErrTimeout = errors.New("operation timed out")
)

// Config controls one breaker.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration // per operation
	ResetTimeout     time.Duration // time spent open before probing
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          MinTimeout,
		ResetTimeout:     120 * time.Second,
	}
}

// FromSettings builds a Config from the breaker section of the application
// config. The operation timeout follows requestTimeout with a MinTimeout
// floor.
func FromSettings(s config.BreakerConfig, requestTimeout time.Duration) Config {
	cfg := Config{
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
		Timeout:          requestTimeout,
		ResetTimeout:     s.ResetTimeout,
	}
	if cfg.Timeout < MinTimeout {
		cfg.Timeout = MinTimeout
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	changedAt time.Time
}

// New creates a closed breaker. Zero fields in cfg take their defaults.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.changedAt = b.now()
	return b
}

// Name returns the registry key of the breaker.
func (b *Breaker) Name() string {
	return b.name
}

// Config returns the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// State returns the current state, promoting Open to HalfOpen once the reset
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Counts returns the consecutive failure and success counters.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.successes
}

// Execute runs op unless the breaker is open. op receives a context bounded
// by the breaker timeout; exceeding it counts as a failure and yields
// ErrTimeout. Cancellation of ctx itself is returned as-is and not counted.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-opCtx.Done():
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil && opCtx.Err() != nil {
		err = fmt.Errorf("%w after %s", ErrTimeout, b.cfg.Timeout)
	} else if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, b.cfg.Timeout, err)
	}

	if err != nil {
		b.onFailure(err)
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	if b.state == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.changedAt) >= b.cfg.ResetTimeout {
		b.setStateLocked(StateHalfOpen)
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setStateLocked(StateClosed)
		}
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures++
		b.logger.Debug("breaker failure recorded",
			"breaker", b.name, "failures", b.failures, "error", err)
		if b.failures >= b.cfg.FailureThreshold {
			b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.failures++
		b.setStateLocked(StateOpen)
	}
}

func (b *Breaker) setStateLocked(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	b.changedAt = b.now()
	switch s {
	case StateClosed:
		b.failures, b.successes = 0, 0
	case StateHalfOpen:
		b.successes = 0
	}
	level := slog.LevelInfo
	if s == StateOpen {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "breaker state change",
		"breaker", b.name, "from", from.String(), "to", s.String(), "failures", b.failures)
}
