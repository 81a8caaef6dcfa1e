package redis

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the reset timeout
	StateHalfOpen State = 2 // one trial call allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards Redis calls. After maxFailures consecutive failures
// it opens and rejects calls for resetTimeout, then lets a single trial call
// through: success closes it, failure reopens it. Calls arriving while the
// trial call is in flight are rejected.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	trialRunning      bool
	now          func() time.Time

	// OnStateChange, if set, is called on every transition with the
	// breaker lock held. It must not call back into the breaker.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	trial := false
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trialRunning, trial = true, true
	case StateHalfOpen:
		if cb.trialRunning {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.trialRunning, trial = true, true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trialRunning = false
	}

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != StateOpen {
				cb.transition(StateOpen)
			}
		}
		return err
	}

	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
