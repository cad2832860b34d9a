package polar

import (
	"sync"
	"testing"
	"time"
)

func newTestTracker(shortCeiling, longCeiling int) (*RateLimitTracker, *time.Time) {
	t := NewRateLimitTracker(15*time.Minute, shortCeiling, longCeiling)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestTryAcquireExhaustsShortWindow(t *testing.T) {
	tracker, _ := newTestTracker(15, 100)

	for i := 0; i < 15; i++ {
		if denied := tracker.TryAcquire("user-1"); denied != nil {
			t.Fatalf("acquisition %d unexpectedly denied: %v", i+1, denied)
		}
	}

	denied := tracker.TryAcquire("user-1")
	if denied == nil {
		t.Fatal("16th acquisition should be denied")
	}
	if denied.Type != ErrRateLimited15m {
		t.Errorf("expected RATE_LIMITED_15M, got %s", denied.Type)
	}
	if denied.RetryAfter <= 0 || denied.RetryAfter > 15*time.Minute {
		t.Errorf("unexpected retry after: %v", denied.RetryAfter)
	}

	// the long window still has budget; only the short window denies
	_, long := tracker.Remaining("user-1")
	if long != 100-15 {
		t.Errorf("long window should hold %d, got %d", 100-15, long)
	}
}

func TestShortWindowResetsLazily(t *testing.T) {
	tracker, now := newTestTracker(15, 100)

	for i := 0; i < 15; i++ {
		if denied := tracker.TryAcquire("user-1"); denied != nil {
			t.Fatalf("setup acquisition denied: %v", denied)
		}
	}
	if tracker.TryAcquire("user-1") == nil {
		t.Fatal("expected denial at ceiling")
	}

	// crossing the reset boundary must refill before the remaining check
	*now = now.Add(15*time.Minute + time.Second)
	if denied := tracker.TryAcquire("user-1"); denied != nil {
		t.Fatalf("acquisition after window reset denied: %v", denied)
	}

	// the long window keeps its prior decrements and is unaffected by the
	// short reset
	short, long := tracker.Remaining("user-1")
	if short != 15-1 {
		t.Errorf("short window should have refilled to %d, got %d", 15-1, short)
	}
	if long != 100-16 {
		t.Errorf("long window should hold %d, got %d", 100-16, long)
	}
}

func TestLongWindowDenies(t *testing.T) {
	tracker, _ := newTestTracker(100, 10)

	for i := 0; i < 10; i++ {
		if denied := tracker.TryAcquire("user-1"); denied != nil {
			t.Fatalf("setup acquisition denied: %v", denied)
		}
	}

	denied := tracker.TryAcquire("user-1")
	if denied == nil {
		t.Fatal("expected denial when long window exhausted")
	}
	if denied.Type != ErrRateLimited24h {
		t.Errorf("expected RATE_LIMITED_24H, got %s", denied.Type)
	}
}

func TestBudgetsAreIndependentPerUser(t *testing.T) {
	tracker, _ := newTestTracker(1, 100)

	if denied := tracker.TryAcquire("user-a"); denied != nil {
		t.Fatalf("user-a denied: %v", denied)
	}
	if denied := tracker.TryAcquire("user-b"); denied != nil {
		t.Fatalf("user-b should have a fresh budget: %v", denied)
	}
	if tracker.TryAcquire("user-a") == nil {
		t.Error("user-a should be exhausted")
	}
}

func TestConcurrentAcquiresNeverOverGrant(t *testing.T) {
	tracker := NewRateLimitTracker(15*time.Minute, 50, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryAcquire("user-1") == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 50 {
		t.Errorf("expected exactly 50 grants, got %d", granted)
	}
}

func TestStatusSnapshot(t *testing.T) {
	tracker, _ := newTestTracker(15, 100)

	tracker.TryAcquire("user-1")
	tracker.TryAcquire("user-1")

	status := tracker.Status("user-1")
	if status.ShortRemaining != 13 || status.ShortLimit != 15 {
		t.Errorf("unexpected short status: %+v", status)
	}
	if status.LongRemaining != 98 || status.LongLimit != 100 {
		t.Errorf("unexpected long status: %+v", status)
	}
}
