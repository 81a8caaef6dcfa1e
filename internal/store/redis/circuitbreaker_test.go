package redis

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

// fakeClock lets tests move past the reset timeout without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateOpen {
		t.Fatal("expected Open")
	}

	clk.advance(1100 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful trial call, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOneCall(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if cb.CurrentState() != StateHalfOpen {
		t.Fatalf("expected HalfOpen while the trial call runs, got %v", cb.CurrentState())
	}
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen during the trial call, got %v", err)
	}
	if called {
		t.Error("a second call must not run while the trial call is in flight")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call: expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after the trial call, got %v", cb.CurrentState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected calls to pass once closed, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed trial call, got %v", cb.CurrentState())
	}

	// The failed trial call restarts the timeout.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb, clk := newTestBreaker(1, time.Second)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errFail })
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected [Open], got %v", transitions)
	}

	clk.advance(2 * time.Second)
	cb.Execute(func() error { return nil })

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %v", len(transitions), transitions)
	}
	if transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Errorf("expected [Open, HalfOpen, Closed], got %v", transitions)
	}
}
