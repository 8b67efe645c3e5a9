// Package breaker provides a circuit breaker guarding calls to a failing
// dependency. After the error rate over recent calls crosses a threshold the
// breaker opens and calls fail fast until a reset probe succeeds.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call fails fast because the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config defines breaker behavior.
type Config struct {
	// Timeout is the deadline applied to every guarded call. A call that
	// exceeds it is aborted and counted as a failure.
	Timeout time.Duration
	// ErrorThreshold is the failure rate over the sliding window that opens
	// the breaker, in [0,1].
	ErrorThreshold float64
	// WindowSize is how many recent calls the failure rate is computed over.
	WindowSize int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial call.
	ResetTimeout time.Duration
	// MinCalls is the minimum number of recorded calls before the error rate
	// is evaluated, so a single early failure cannot open the breaker.
	MinCalls int
}

// DefaultConfig returns the standard breaker configuration: 100ms call
// timeout (the per-batch latency budget), 50% error threshold over the last
// 10 calls, 10s reset timeout.
func DefaultConfig() Config {
	return Config{
		Timeout:        100 * time.Millisecond,
		ErrorThreshold: 0.5,
		WindowSize:     10,
		ResetTimeout:   10 * time.Second,
		MinCalls:       4,
	}
}

// Breaker is a circuit breaker instance. Each guarded dependency (here: one
// partition's analyzer pipeline) owns its own Breaker so one noisy partition
// cannot trip protection for the others.
type Breaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	openedAt time.Time
	// ring of recent call outcomes, true = failure
	window []bool
	head   int
	filled int
}

// New creates a breaker in the closed state.
func New(name string, cfg Config) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultConfig().ErrorThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		state:  Closed,
		window: make([]bool, cfg.WindowSize),
	}
	slog.Info("Circuit breaker created",
		"name", name,
		"timeout", cfg.Timeout,
		"error_threshold", cfg.ErrorThreshold,
		"window_size", cfg.WindowSize,
		"reset_timeout", cfg.ResetTimeout,
	)
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker. While the breaker is open it returns
// ErrOpen without invoking op. The configured Timeout bounds the call; an
// aborted call counts as a failure.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			slog.Warn("Circuit breaker fast-fail", "name", b.name)
			return ErrOpen
		}
		// Reset window has elapsed: allow a single trial call.
		b.state = HalfOpen
		slog.Info("Circuit breaker half-open, allowing trial call", "name", b.name)
	case HalfOpen:
		// Another trial is already in flight; shed this call.
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := b.call(ctx, op)
	if err != nil {
		b.onFailure(err)
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) call(ctx context.Context, op func(ctx context.Context) error) error {
	if b.cfg.Timeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return callCtx.Err()
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		// Trial call succeeded: close and start over with a clean window.
		b.state = Closed
		b.head, b.filled = 0, 0
		slog.Info("Circuit breaker closed after successful trial", "name", b.name)
		return
	}
	b.record(false)
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		slog.Warn("Circuit breaker reopened after failed trial", "name", b.name, "error", err)
		return
	}

	b.record(true)
	if b.filled < b.cfg.MinCalls {
		return
	}
	if rate := b.failureRate(); rate >= b.cfg.ErrorThreshold {
		b.state = Open
		b.openedAt = time.Now()
		slog.Error("Circuit breaker opened",
			"name", b.name,
			"failure_rate", rate,
			"threshold", b.cfg.ErrorThreshold,
		)
	}
}

// record appends one call outcome to the sliding window. Caller holds b.mu.
func (b *Breaker) record(failed bool) {
	b.window[b.head] = failed
	b.head = (b.head + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

// failureRate computes the failure fraction over the filled window. Caller holds b.mu.
func (b *Breaker) failureRate() float64 {
	if b.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.filled; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}
