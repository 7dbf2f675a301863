package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, cfg), mr
}

func TestCheckAllowsFreshCredential(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 3, BaseLockout: time.Minute})

	if err := l.Check(context.Background(), "emp-1", "10.0.0.1"); err != nil {
		t.Fatalf("expected fresh credential to pass: %v", err)
	}
}

func TestLockoutAtThreshold(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 3, BaseLockout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, _, err := l.RecordFailure(ctx, "emp-1", "")
		if err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is 3", i+1)
		}
	}

	locked, lockFor, err := l.RecordFailure(ctx, "emp-1", "")
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if !locked {
		t.Fatal("expected lockout at threshold")
	}
	if lockFor != time.Minute {
		t.Fatalf("expected base lockout 1m, got %s", lockFor)
	}

	err = l.Check(ctx, "emp-1", "")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	var lockErr *LockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if lockErr.RetryAfter <= 0 || lockErr.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %s", lockErr.RetryAfter)
	}
}

func TestLockoutBackoffDoublesAndCaps(t *testing.T) {
	l, _ := newLimiterTest(t, Config{
		MaxAttempts:          2,
		BaseLockout:          time.Minute,
		MaxLockoutMultiplier: 8,
	})
	ctx := context.Background()

	// First failure is under the threshold; from the threshold on the
	// lockout doubles until the 8x cap holds.
	expected := []time.Duration{
		0,
		1 * time.Minute,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		8 * time.Minute,
		8 * time.Minute,
	}

	for i, want := range expected {
		locked, lockFor, err := l.RecordFailure(ctx, "emp-1", "")
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		if want == 0 {
			if locked {
				t.Fatalf("failure %d: unexpected lockout", i+1)
			}
			continue
		}
		if !locked || lockFor != want {
			t.Fatalf("failure %d: locked=%v lockFor=%s, want %s", i+1, locked, lockFor, want)
		}
	}
}

func TestLockoutExpires(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 1, BaseLockout: time.Minute})
	ctx := context.Background()

	if locked, _, err := l.RecordFailure(ctx, "emp-1", ""); err != nil || !locked {
		t.Fatalf("expected immediate lockout: locked=%v err=%v", locked, err)
	}
	if err := l.Check(ctx, "emp-1", ""); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.Check(ctx, "emp-1", ""); err != nil {
		t.Fatalf("expected lockout to expire: %v", err)
	}
}

func TestResetClearsCounterAndLock(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 1, BaseLockout: time.Minute})
	ctx := context.Background()

	if _, _, err := l.RecordFailure(ctx, "emp-1", ""); err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if err := l.Reset(ctx, "emp-1"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}

	if err := l.Check(ctx, "emp-1", ""); err != nil {
		t.Fatalf("expected check to pass after reset: %v", err)
	}
	count, err := l.FailureCount(ctx, "emp-1")
	if err != nil {
		t.Fatalf("FailureCount error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero failures after reset, got %d", count)
	}
}

func TestAttemptRecordsExpire(t *testing.T) {
	l, mr := newLimiterTest(t, Config{
		MaxAttempts: 5,
		BaseLockout: time.Minute,
		Retention:   time.Hour,
	})
	ctx := context.Background()

	if _, _, err := l.RecordFailure(ctx, "emp-1", ""); err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	count, err := l.FailureCount(ctx, "emp-1")
	if err != nil {
		t.Fatalf("FailureCount error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected attempt record to expire, got %d", count)
	}
}

func TestOriginThrottle(t *testing.T) {
	l, _ := newLimiterTest(t, Config{
		MaxAttempts:          100,
		BaseLockout:          time.Minute,
		EnableOriginThrottle: true,
		OriginMaxAttempts:    2,
	})
	ctx := context.Background()

	// Failures across distinct credentials from one origin.
	for _, cred := range []string{"emp-1", "emp-2"} {
		if _, _, err := l.RecordFailure(ctx, cred, "10.0.0.9"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	err := l.Check(ctx, "emp-3", "10.0.0.9")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected origin throttle to trip, got %v", err)
	}

	// A different origin is unaffected.
	if err := l.Check(ctx, "emp-3", "10.0.0.10"); err != nil {
		t.Fatalf("expected clean origin to pass: %v", err)
	}
}
