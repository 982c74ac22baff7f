package responder

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBreaker(cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		Cooldown:         cooldown,
	}, zerolog.Nop())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if !cb.Allow() {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker allowed a call inside the cooldown")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after interleaved success", cb.State())
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	cb := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker did not half-open after cooldown")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}
	if cb.Allow() {
		t.Error("half-open breaker allowed a second concurrent probe")
	}
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	cb := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("probe not allowed")
	}
	cb.RecordSuccess()

	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
	if !cb.Allow() {
		t.Error("closed breaker rejected a call")
	}
}

func TestBreakerReopensAfterFailedProbe(t *testing.T) {
	cb := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("probe not allowed")
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open after failed probe", cb.State())
	}
	if cb.Allow() {
		t.Error("re-opened breaker allowed a call immediately")
	}
}
