package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, Options{MaxRetries: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: time.Second})

	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsAfterMaxRetries(t *testing.T) {
	cause := errors.New("boom")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	}, Options{MaxRetries: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: time.Minute})

	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 recorded attempts, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected error to wrap the original cause")
	}
}

func TestDo_ZeroMaxRetriesRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	}, Options{MaxRetries: 0, InitialInterval: 10 * time.Millisecond, MaxInterval: time.Minute})

	if calls != 1 {
		t.Errorf("Expected exactly 1 attempt with MaxRetries=0, got %d", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("Expected ExhaustedError, got %v", err)
	}
}

func TestDo_IntervalExceededIsDistinct(t *testing.T) {
	cause := errors.New("slow failure")
	// Second delay (20ms) reaches MaxInterval before attempts run out.
	err := Do(context.Background(), func(ctx context.Context) error {
		return cause
	}, Options{MaxRetries: 10, InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond})

	var exceeded *IntervalExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Expected IntervalExceededError, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("IntervalExceededError must not satisfy ExhaustedError")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected error to wrap the original cause")
	}
}

func TestDo_ShouldRetryStopsImmediately(t *testing.T) {
	fatal := errors.New("bad configuration")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	}, Options{
		MaxRetries:      5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Minute,
		ShouldRetry:     func(err error) bool { return false },
	})

	if calls != 1 {
		t.Errorf("Expected 1 attempt when ShouldRetry is false, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("Expected the original error to propagate unchanged, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("Non-retryable errors must not be wrapped in ExhaustedError")
	}
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	}, Options{MaxRetries: 10, InitialInterval: time.Hour, MaxInterval: 10 * time.Hour})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", calls)
	}
}
