package resilience

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests advance the breaker's notion of time
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: reset})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}
	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}
	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)

	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Error("Expected non-consecutive failures to keep the circuit Closed")
	}
}

func TestCircuitBreaker_HalfOpenAdmitsLimitedTrials(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	cb.RecordResult(false)

	clock.advance(time.Second)

	if !cb.allowRequest() {
		t.Fatal("Expected a trial request after the reset timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected HalfOpen, got %s", cb.GetState())
	}
	if cb.allowRequest() {
		t.Error("Expected a second concurrent trial to be rejected")
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	cb.RecordResult(false)
	clock.advance(2 * time.Second)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected trial call to succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed after successful trial, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	clock.advance(time.Second)

	err := cb.Call(func() error { return errors.New("still down") })
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected the trial's own error, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open after failure in HalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while Open")
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	clientErr := errors.New("bad request")
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, clientErr) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Call(func() error { return clientErr })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected ignored errors to keep circuit Closed, got %s", cb.GetState())
	}

	_ = cb.Call(func() error { return errors.New("upstream down") })
	if cb.GetState() != StateOpen {
		t.Errorf("Expected counted error to open circuit, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	cb.now = clock.now

	cb.RecordResult(false)
	clock.advance(time.Second)
	_ = cb.Call(func() error { return nil })

	want := []string{"openai:closed->open", "openai:open->half_open", "openai:half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb, _ := newTestBreaker(10, time.Second)

	cb.RecordResult(true)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requests, failures, rate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected Closed, got %s", state)
	}
	if requests != 4 {
		t.Errorf("Expected 4 requests, got %d", requests)
	}
	if failures != 2 {
		t.Errorf("Expected 2 failures, got %d", failures)
	}
	if rate != 50.0 {
		t.Errorf("Expected 50%% failure rate, got %.2f", rate)
	}
}

func TestCircuitBreaker_Rejecting(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	if cb.Rejecting() {
		t.Error("Expected closed breaker not to reject")
	}

	cb.RecordResult(false)
	if !cb.Rejecting() {
		t.Error("Expected open breaker to reject inside the reset timeout")
	}

	clock.advance(time.Minute)
	if cb.Rejecting() {
		t.Error("Expected open breaker to let a trial call through after the reset timeout")
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Rejecting not to change state, got %s", cb.GetState())
	}
}
