package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// Config holds breaker tuning knobs
type Config struct {
	FailureThreshold int           // consecutive failures before tripping open
	SuccessThreshold int           // consecutive half-open successes before closing
	OpenTimeout      time.Duration // how long to stay open before probing
	MaxProbes        int           // concurrent probes allowed while half-open
	OnStateChange    func(name string, from, to State)
}

// DefaultConfig returns the defaults used when a knob is zero
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      15 * time.Second,
		MaxProbes:        1,
	}
}

// Breaker guards an outbound dependency. It trips open after a run of
// consecutive failures, rejects calls while open, and lets a bounded number
// of probe requests through once the open timeout has elapsed.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	probes       int
	openedAt     time.Time
	totalCalls   uint64
	totalRejects uint64
}

// New creates a breaker. Zero-valued config fields fall back to defaults.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = def.MaxProbes
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Breaker{name: name, cfg: cfg, logger: logger, state: StateClosed}
}

// Execute runs fn if the breaker admits the call and feeds the outcome back
// into the breaker. Context cancellation inside fn counts as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(false)
			panic(r)
		}
	}()

	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(time.Now())
}

// Stats returns total admitted and rejected call counts.
func (b *Breaker) Stats() (calls, rejects uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalCalls, b.totalRejects
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked(time.Now()) {
	case StateOpen:
		b.totalRejects++
		return ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.MaxProbes {
			b.totalRejects++
			return ErrOpen
		}
		b.probes++
	}
	b.totalCalls++
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(time.Now())
	if state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}

	if success {
		b.failures = 0
		if state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	switch state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Probe failed; back to open for another timeout window.
		b.transition(StateOpen)
	}
}

// stateLocked resolves open→half-open once the timeout has elapsed.
// Caller must hold b.mu.
func (b *Breaker) stateLocked(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probes = 0
	if to == StateOpen {
		b.openedAt = time.Now()
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
