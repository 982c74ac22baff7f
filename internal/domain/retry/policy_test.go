package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"concierge-server/internal/domain/chaterrors"
)

func TestCalculateDelay(t *testing.T) {
	p := Policy{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 30 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := p.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	p := Policy{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
	for i := 0; i < 100; i++ {
		got := p.CalculateDelay(2)
		if got < 1500*time.Millisecond || got > 2500*time.Millisecond {
			t.Fatalf("jittered delay %s outside [1.5s, 2.5s]", got)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	p := ResponderPolicy()

	retryable := chaterrors.New(chaterrors.CodeTimeout, "timed out", chaterrors.SeverityRetryable)
	fatal := chaterrors.New(chaterrors.CodeAuthFailed, "bad credentials", chaterrors.SeverityFatal)

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"retryable under budget", 0, retryable, true},
		{"retryable at budget", p.MaxRetries, retryable, false},
		{"fatal never retried", 0, fatal, false},
		{"plain error treated as retryable", 0, errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.attempt, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

func TestExecuteWithResultStopsOnFatal(t *testing.T) {
	p := Policy{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	_, err := ExecuteWithResult(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", chaterrors.New(chaterrors.CodeAuthFailed, "bad credentials", chaterrors.SeverityFatal)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("fatal error was retried: %d calls", calls)
	}
}

func TestExecuteWithResultRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	got, err := ExecuteWithResult(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if calls < 3 {
			return "", chaterrors.New(chaterrors.CodeTimeout, "timed out", chaterrors.SeverityRetryable)
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" || calls != 3 {
		t.Errorf("got %q after %d calls, want \"hello\" after 3", got, calls)
	}
}

func TestExecuteWithResultExhaustsAttempts(t *testing.T) {
	p := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	_, err := ExecuteWithResult(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, chaterrors.New(chaterrors.CodeTimeout, "timed out", chaterrors.SeverityRetryable)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxRetries: 10, InitialDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, p, func(ctx context.Context, attempt int) error {
			return chaterrors.New(chaterrors.CodeTimeout, "timed out", chaterrors.SeverityRetryable)
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}
