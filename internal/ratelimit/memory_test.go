package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(5, time.Minute)
	m.SetClock(func() time.Time { return now })

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "user:a")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	// 6th within the window is rejected regardless of anything else.
	if ok, _ := m.Allow(ctx, "user:a"); ok {
		t.Error("6th request within window should be rejected")
	}

	if rem, _ := m.Remaining(ctx, "user:a"); rem != 0 {
		t.Errorf("expected 0 remaining, got %d", rem)
	}

	// A different identity has its own window.
	if ok, _ := m.Allow(ctx, "user:b"); !ok {
		t.Error("other identity should not be throttled")
	}

	// After natural expiry the counter resets to 1.
	now = now.Add(61 * time.Second)
	if ok, _ := m.Allow(ctx, "user:a"); !ok {
		t.Error("request after window expiry should be allowed")
	}
	if rem, _ := m.Remaining(ctx, "user:a"); rem != 4 {
		t.Errorf("expected 4 remaining after reset, got %d", rem)
	}
}

func TestMemoryRejectionConsumesNoQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.SetClock(func() time.Time { return now })

	ctx := context.Background()
	m.Allow(ctx, "k")
	m.Allow(ctx, "k")

	for i := 0; i < 10; i++ {
		if ok, _ := m.Allow(ctx, "k"); ok {
			t.Fatal("over-quota request allowed")
		}
	}

	// Rejections above did not extend or grow the window.
	now = now.Add(time.Minute + time.Second)
	if ok, _ := m.Allow(ctx, "k"); !ok {
		t.Error("window should have expired normally")
	}
}

func TestMemorySweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(5, time.Minute)
	m.SetClock(func() time.Time { return now })

	ctx := context.Background()
	m.Allow(ctx, "a")
	m.Allow(ctx, "b")

	if deleted := m.Sweep(); deleted != 0 {
		t.Errorf("nothing should be swept yet, got %d", deleted)
	}

	now = now.Add(2 * time.Minute)
	m.Allow(ctx, "c")

	if deleted := m.Sweep(); deleted != 2 {
		t.Errorf("expected 2 swept entries, got %d", deleted)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 live entry, got %d", m.Len())
	}
}
