package polar

import (
	"sync"
	"time"
)

// RateLimitTracker owns each user's dual-window call budget against the
// upstream API. A call is permitted only when both windows have remaining
// budget; a permitted call decrements both. Windows reset lazily on access,
// no background timer.
type RateLimitTracker struct {
	mu    sync.Mutex
	users map[string]*userBudget

	shortWindow  time.Duration
	shortCeiling int
	longWindow   time.Duration
	longCeiling  int

	now func() time.Time
}

type userBudget struct {
	mu             sync.Mutex
	shortRemaining int
	shortResetAt   time.Time
	longRemaining  int
	longResetAt    time.Time
}

// RateLimitStatus is a read-only view of one user's budget,
// used for informational response headers
type RateLimitStatus struct {
	ShortRemaining int
	ShortLimit     int
	ShortResetAt   time.Time
	LongRemaining  int
	LongLimit      int
	LongResetAt    time.Time
}

// NewRateLimitTracker creates a tracker with the given window sizes
func NewRateLimitTracker(shortWindow time.Duration, shortCeiling, longCeiling int) *RateLimitTracker {
	return &RateLimitTracker{
		users:        make(map[string]*userBudget),
		shortWindow:  shortWindow,
		shortCeiling: shortCeiling,
		longWindow:   24 * time.Hour,
		longCeiling:  longCeiling,
		now:          time.Now,
	}
}

func (t *RateLimitTracker) budget(userID string) *userBudget {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.users[userID]
	if !ok {
		now := t.now()
		b = &userBudget{
			shortRemaining: t.shortCeiling,
			shortResetAt:   now.Add(t.shortWindow),
			longRemaining:  t.longCeiling,
			longResetAt:    now.Add(t.longWindow),
		}
		t.users[userID] = b
	}
	return b
}

// resetExpired must run before any remaining-count check.
// Caller holds b.mu.
func (t *RateLimitTracker) resetExpired(b *userBudget, now time.Time) {
	for !now.Before(b.shortResetAt) {
		b.shortRemaining = t.shortCeiling
		b.shortResetAt = b.shortResetAt.Add(t.shortWindow)
	}
	for !now.Before(b.longResetAt) {
		b.longRemaining = t.longCeiling
		b.longResetAt = b.longResetAt.Add(t.longWindow)
	}
}

// TryAcquire permits or denies one upstream call for the user.
// Returns nil on permit; on denial, a classified rate limit error carrying
// the time until the limiting window resets. The whole read-reset-check-
// decrement sequence runs under the user's lock so concurrent attempts
// cannot race past the budget.
func (t *RateLimitTracker) TryAcquire(userID string) *Error {
	b := t.budget(userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := t.now()
	t.resetExpired(b, now)

	if b.shortRemaining <= 0 {
		return &Error{
			Type:       ErrRateLimited15m,
			Message:    "short-window budget exhausted",
			RetryAfter: b.shortResetAt.Sub(now),
		}
	}
	if b.longRemaining <= 0 {
		return &Error{
			Type:       ErrRateLimited24h,
			Message:    "long-window budget exhausted",
			RetryAfter: b.longResetAt.Sub(now),
		}
	}

	b.shortRemaining--
	b.longRemaining--
	return nil
}

// Remaining returns the user's current remaining budget in both windows
// without consuming any
func (t *RateLimitTracker) Remaining(userID string) (short, long int) {
	b := t.budget(userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	t.resetExpired(b, t.now())
	return b.shortRemaining, b.longRemaining
}

// Status returns a snapshot of the user's budget for informational headers
func (t *RateLimitTracker) Status(userID string) RateLimitStatus {
	b := t.budget(userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	t.resetExpired(b, t.now())
	return RateLimitStatus{
		ShortRemaining: b.shortRemaining,
		ShortLimit:     t.shortCeiling,
		ShortResetAt:   b.shortResetAt,
		LongRemaining:  b.longRemaining,
		LongLimit:      t.longCeiling,
		LongResetAt:    b.longResetAt,
	}
}
