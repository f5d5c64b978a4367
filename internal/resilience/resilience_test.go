package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDoVal_NoRetryMakesOneAttempt(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), NoRetry(), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_RetriesTransient(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", val, calls)
	}
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one failed call, got %d (err=%v)", calls, err)
	}
}

func TestDoVal_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one failed call, got %d (err=%v)", calls, err)
	}
}

func TestFromAttempts(t *testing.T) {
	if got := FromAttempts(0).MaxAttempts; got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := FromAttempts(4).MaxAttempts; got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 502), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"text", errors.New("read tcp: connection reset by peer"), true},
		{"permanent", errors.New("invalid payload"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, NewTransientError(errors.New("down"), 503) }
	ok := func(context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteVal(context.Background(), cb, fail)
	_, _ = ExecuteVal(context.Background(), cb, fail)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	if _, err := ExecuteVal(context.Background(), cb, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if v, err := ExecuteVal(context.Background(), cb, ok); err != nil || v != 1 {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed || cb.Failures() != 0 {
		t.Errorf("expected closed with no failures, got %s/%d", cb.State(), cb.Failures())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(FromCircuitConfig(1, 10))
	cb.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, NewTransientError(errors.New("down"), 503) }
	_, _ = ExecuteVal(context.Background(), cb, fail)
	now = now.Add(11 * time.Second)
	_, _ = ExecuteVal(context.Background(), cb, fail)

	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got %s", cb.State())
	}
}

func TestCircuitBreaker_IgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(FromCircuitConfig(2, 60))
	reject := func(context.Context) (int, error) { return 0, errors.New("unexpected status 422") }

	for i := 0; i < 5; i++ {
		if _, err := ExecuteVal(context.Background(), cb, reject); errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: circuit opened on a rejected request", i)
		}
	}
	if cb.State() != CircuitClosed || cb.Failures() != 0 {
		t.Errorf("expected closed with no failures, got %s/%d", cb.State(), cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(FromCircuitConfig(1, 10))
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 0, NewTransientError(errors.New("down"), 502)
	})
	now = now.Add(11 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	if _, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 1, nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second caller during trial: expected ErrCircuitOpen, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after trial, got %s", cb.State())
	}
	if _, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Errorf("closed breaker rejected call: %v", err)
	}
}
