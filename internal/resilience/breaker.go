// Package resilience guards outbound calls, SEC endpoints and the
// extraction service, with retries and per-host circuit breaking.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned without invoking the call when the breaker
// is rejecting traffic.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// State is the breaker's admission mode.
type State uint8

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits trial calls; one success closes the circuit,
	// one failure reopens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	// Threshold is how many consecutive failures open the circuit.
	Threshold int
	// Cooldown is how long an open circuit rejects calls before
	// admitting a trial.
	Cooldown time.Duration
	// OnStateChange, when set, observes every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerConfig opens after 5 consecutive failures and cools down
// for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// CircuitBreaker sheds load from a single upstream once it fails
// repeatedly, then feels its way back with trial calls.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	clock func() time.Time
}

// NewCircuitBreaker returns a closed breaker. The name only appears in
// OnStateChange notifications.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, clock: time.Now}
}

// Guard runs fn through the breaker. An open circuit returns
// ErrCircuitOpen without calling fn; otherwise fn's outcome is recorded
// and passed through.
func Guard[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.admit(); err != nil {
		var zero T
		return zero, err
	}
	val, err := fn(ctx)
	cb.observe(err)
	return val, err
}

// State reports the current admission mode, accounting for an elapsed
// cooldown.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.clock().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	if cb.clock().Sub(cb.openedAt) < cb.cfg.Cooldown {
		return ErrCircuitOpen
	}
	cb.shift(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.shift(StateClosed)
		}
		return
	}

	cb.failures++
	cb.openedAt = cb.clock()
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.Threshold {
			cb.shift(StateOpen)
		}
	case StateHalfOpen:
		cb.shift(StateOpen)
	}
}

// shift is called with cb.mu held.
func (cb *CircuitBreaker) shift(to State) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// BreakerSet keys circuit breakers by name, one per upstream host or
// service, all sharing a config.
type BreakerSet struct {
	cfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet returns an empty set; breakers are created on first use.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// For returns the named breaker, creating it if needed.
func (bs *BreakerSet) For(name string) *CircuitBreaker {
	bs.mu.RLock()
	cb, ok := bs.breakers[name]
	bs.mu.RUnlock()
	if ok {
		return cb
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if cb, ok = bs.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, bs.cfg)
	bs.breakers[name] = cb
	return cb
}

// States snapshots the admission mode of every breaker in the set.
func (bs *BreakerSet) States() map[string]State {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]State, len(bs.breakers))
	for name, cb := range bs.breakers {
		out[name] = cb.State()
	}
	return out
}
