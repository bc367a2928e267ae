package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noJitter returns a deterministic schedule for delay assertions.
func noJitter(maxAttempts int) Config {
	return Config{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  maxAttempts,
	}
}

func fastConfig(maxAttempts int) Config {
	return Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  maxAttempts,
	}
}

// ============================================================================
// Backoff Schedule Tests
// ============================================================================

func TestBackoff_Schedule(t *testing.T) {
	b := New(noJitter(6))
	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond, // capped
		50 * time.Millisecond,
		50 * time.Millisecond,
		0, // attempts exhausted
	}
	for i, w := range want {
		if got := b.Next(0); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	cfg := noJitter(0)
	cfg.JitterFraction = 0.2
	for i := 0; i < 200; i++ {
		d := New(cfg).Next(0)
		if d < 8*time.Millisecond || d > 12*time.Millisecond {
			t.Fatalf("Next() = %v, want within 10ms ±20%%", d)
		}
	}
}

func TestBackoff_ServerHintIsLowerBound(t *testing.T) {
	b := New(noJitter(0))
	if got := b.Next(time.Second); got != time.Second {
		t.Errorf("Next(1s) = %v, want 1s", got)
	}
	if got := b.Next(time.Millisecond); got != 20*time.Millisecond {
		t.Errorf("Next(1ms) = %v, want the computed 20ms", got)
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	b := New(Config{JitterFraction: 7})
	def := DefaultConfig()
	if b.config.InitialDelay != def.InitialDelay || b.config.MaxDelay != def.MaxDelay || b.config.Multiplier != def.Multiplier {
		t.Errorf("zero config not defaulted: %+v", b.config)
	}
	if b.config.JitterFraction != 1 {
		t.Errorf("JitterFraction = %v, want clamped to 1", b.config.JitterFraction)
	}
}

func TestUploadConfig(t *testing.T) {
	up, def := UploadConfig(), DefaultConfig()
	if up.MaxAttempts < 1 || up.MaxAttempts > def.MaxAttempts {
		t.Errorf("UploadConfig().MaxAttempts = %d, want bounded by %d", up.MaxAttempts, def.MaxAttempts)
	}
	if up.InitialDelay <= def.InitialDelay {
		t.Errorf("UploadConfig().InitialDelay = %v, want slower than transport retries", up.InitialDelay)
	}
}

// ============================================================================
// Do / DoWithHint Tests
// ============================================================================

func TestDo_RetryThenSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(5), func() (string, error, bool) {
		calls++
		if calls < 3 {
			return "", errors.New("transient"), true
		}
		return "stamps/s1/a.jpg", nil, false
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "stamps/s1/a.jpg" || calls != 3 {
		t.Errorf("Do() = %q after %d calls, want success after 3", got, calls)
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), func() (int, error, bool) {
		calls++
		return 0, errors.New("offline"), true
	})
	if err == nil || err.Error() != "offline" {
		t.Errorf("Do() error = %v, want offline", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	_, err := Do(context.Background(), fastConfig(5), func() (int, error, bool) {
		calls++
		return 0, permanent, false
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("Do() = %v after %d calls, want permanent error after 1", err, calls)
	}
}

func TestDo_CanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Do(ctx, fastConfig(3), func() (int, error, bool) {
		called = true
		return 0, nil, false
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("Do() = %v, called = %v; want context.Canceled without calling fn", err, called)
	}
}

func TestDo_CanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{InitialDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 3}
	start := time.Now()
	_, err := Do(ctx, cfg, func() (int, error, bool) {
		return 0, errors.New("transient"), true
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Do() kept sleeping after the context expired")
	}
}

func TestDoWithHint_WaitsForServerHint(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := DoWithHint(context.Background(), fastConfig(2), func() (int, error, bool, time.Duration) {
		calls++
		if calls == 1 {
			return 0, errors.New("busy"), true, 30 * time.Millisecond
		}
		return 1, nil, false, 0
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("retried after %v, want at least the 30ms hint", elapsed)
	}
}
