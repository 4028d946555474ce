package retry

import (
	"context"
	stderrors "errors"
	"io/fs"
	"syscall"
	"testing"
	"time"

	"github.com/exploopio/mvtreport/pkg/errors"
)

func TestBackoffConfig_Interval(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.BaseInterval = 1 * time.Minute
	cfg.MaxInterval = 0
	cfg.Jitter = 0 // Disable jitter for predictable tests

	tests := []struct {
		strategy BackoffStrategy
		attempts int
		expected time.Duration
	}{
		{BackoffExponential, 0, 1 * time.Minute},
		{BackoffExponential, 1, 1 * time.Minute},
		{BackoffExponential, 2, 2 * time.Minute},
		{BackoffExponential, 3, 4 * time.Minute},
		{BackoffExponential, 5, 16 * time.Minute},
		{BackoffLinear, 3, 3 * time.Minute},
		{BackoffConstant, 7, 1 * time.Minute},
	}

	for _, tt := range tests {
		cfg.Strategy = tt.strategy
		if got := cfg.Interval(tt.attempts); got != tt.expected {
			t.Errorf("Interval(%d) with strategy %d = %v, want %v", tt.attempts, tt.strategy, got, tt.expected)
		}
	}
}

func TestBackoffConfig_MaxInterval(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.BaseInterval = 1 * time.Second
	cfg.MaxInterval = 5 * time.Second
	cfg.Jitter = 0

	if got := cfg.Interval(10); got != 5*time.Second {
		t.Errorf("Interval(10) = %v, want 5s", got)
	}
}

func TestBackoffConfig_Jitter(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.BaseInterval = 1 * time.Second
	cfg.Jitter = 0.1

	for i := 0; i < 50; i++ {
		got := cfg.Interval(1)
		if got < 900*time.Millisecond || got > 1100*time.Millisecond {
			t.Fatalf("Interval(1) = %v, want within 10%% of 1s", got)
		}
	}
}

func TestBackoffConfig_Schedule(t *testing.T) {
	cfg := DefaultBackoffConfig()
	got := cfg.Schedule(4)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Schedule()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if cfg.Jitter != 0.1 {
		t.Errorf("Schedule() modified jitter to %v", cfg.Jitter)
	}
	if cfg.Schedule(0) != nil {
		t.Error("Schedule(0) should be nil")
	}
}

func TestDo(t *testing.T) {
	storageErr := errors.E(errors.KindStorage, "archive.RecordRun", "database is locked")
	inputErr := errors.E(errors.KindInvalidInput, "archive.RecordRun", "bad run")
	deniedErr := errors.E(errors.KindStorage, "archive.Open", "create archive directory", fs.ErrPermission)
	fullErr := errors.E(errors.KindStorage, "archive.RecordRun", "insert run", syscall.ENOSPC)

	tests := []struct {
		name      string
		failures  int
		err       error
		opts      []Option
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", failures: 0, err: storageErr, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, err: storageErr, wantCalls: 3},
		{name: "attempts exhausted", failures: 10, err: storageErr, wantCalls: DefaultMaxAttempts, wantErr: true},
		{name: "not retryable", failures: 10, err: inputErr, wantCalls: 1, wantErr: true},
		{name: "permission denied", failures: 10, err: deniedErr, wantCalls: 1, wantErr: true},
		{name: "disk full", failures: 10, err: fullErr, wantCalls: 1, wantErr: true},
		{name: "custom limit", failures: 10, err: storageErr, opts: []Option{WithMaxAttempts(2)}, wantCalls: 2, wantErr: true},
		{
			name:      "custom predicate",
			failures:  1,
			err:       stderrors.New("plain"),
			opts:      []Option{WithRetryable(func(error) bool { return true })},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			calls := 0
			opts := append([]Option{WithSleep(func(_ context.Context, d time.Duration) error {
				waits = append(waits, d)
				return nil
			})}, tt.opts...)

			err := Do(context.Background(), "test", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, opts...)

			if (err != nil) != tt.wantErr {
				t.Errorf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(waits) != tt.wantCalls-1 {
				t.Errorf("waits = %v, want %d", waits, tt.wantCalls-1)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	storageErr := errors.E(errors.KindStorage, "op", "database is locked")

	calls := 0
	err := Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return storageErr
	})
	if err != storageErr {
		t.Errorf("Do() error = %v, want the last attempt's error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
