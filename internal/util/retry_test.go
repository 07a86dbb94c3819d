package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryErr(t *testing.T) {
	calls := 0
	err := RetryErr(3, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryErr returned %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}

	failed := errors.New("always")
	if err := RetryErr(2, func() error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("RetryErr = %v, want last error", err)
	}
}

func TestRetryErrWithContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryErrWithContext(ctx, 5, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("fn called %d times after cancel, want 0", calls)
	}
}

func TestRetryWithContext(t *testing.T) {
	calls := 0
	got, err := RetryWithContext(context.Background(), 3, func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("RetryWithContext = (%d, %v), want (42, nil)", got, err)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{5, 5 * time.Minute},
		{20, 5 * time.Minute},
	}
	for _, tt := range tests {
		got := BackoffDelay(10*time.Second, tt.retries, 5*time.Minute)
		if got != tt.want {
			t.Errorf("BackoffDelay(retries=%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}
