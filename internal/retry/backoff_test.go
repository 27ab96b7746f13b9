package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithBackoff_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), nil, "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBackoff: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithBackoff_Exhausted(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), nil, "op", func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithBackoff_Permanent(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), nil, "op", func() error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("expected unwrapped sentinel, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithBackoff(ctx, fastConfig(3), nil, "op", func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.JitterEnabled = true
	for i := 0; i < 50; i++ {
		got := Backoff(cfg, 1)
		if got < 850*time.Millisecond || got > 1150*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", got)
		}
	}
}
