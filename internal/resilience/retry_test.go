package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("still down"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	var calls int
	permanent := errors.New("validation failed")
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastRetry(10), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("mid-flight"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) ([]string, error) {
		calls++
		if calls < 2 {
			return nil, NewTransientError(errors.New("flaky"), 503)
		}
		return []string{"Sueldo", "Bono"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "Sueldo" {
		t.Errorf("unexpected value %v", got)
	}
}

func TestDoVal_OnRetryCallback(t *testing.T) {
	var retries []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) {
		retries = append(retries, attempt)
	}

	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 0, NewTransientError(errors.New("down"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry callbacks %v", retries)
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
		JitterFraction: -1, // clamped to 0 by applyDefaults
	})
	if d := computeBackoff(5, cfg); d > 2*time.Second {
		t.Errorf("backoff %v exceeds cap", d)
	}
}
