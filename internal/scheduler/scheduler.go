// Package scheduler periodically ranks users by sync urgency and dispatches
// the most urgent ones to the sync executor under global pacing limits.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/metrics"
	"polar-flow-sync/internal/polar"
	"polar-flow-sync/internal/syncer"
)

// Priority orders users within a scheduling cycle
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityNormal:   2,
	PriorityLow:      3,
}

// Staleness bands for priority computation
const (
	staleCritical = 48 * time.Hour
	staleHigh     = 12 * time.Hour
	staleNormal   = 24 * time.Hour
	dormantAfter  = 7 * 24 * time.Hour
	activeWithin  = 3 * 24 * time.Hour
)

// ComputePriority derives a user's sync priority from observable state only:
// time since the last successful sync, token freshness, and the date of the
// user's newest stored data point. It is recomputed every cycle and never
// persisted as source of truth. Dormant users rank LOW regardless of
// staleness; a user with no successful sync at all, a token expiring within
// the cycle, or two days of staleness is CRITICAL. In between, users whose
// device produced data in the last three days get the tighter 12h freshness
// target (HIGH); quiet devices move up at the 24h band (NORMAL).
func ComputePriority(u *database.User, lastDataDate string, now time.Time, cycle time.Duration) Priority {
	var sinceSuccess time.Duration
	if u.LastSuccessAt != nil {
		sinceSuccess = now.Sub(time.Unix(*u.LastSuccessAt, 0))
	}

	if u.LastSuccessAt != nil && sinceSuccess >= dormantAfter {
		return PriorityLow
	}

	tokenExpiring := time.Unix(u.TokenExpiresAt, 0).Before(now.Add(cycle))
	if u.LastSuccessAt == nil || tokenExpiring || sinceSuccess >= staleCritical {
		return PriorityCritical
	}

	// YYYY-MM-DD strings compare correctly as text
	active := lastDataDate != "" && lastDataDate >= now.Add(-activeWithin).Format("2006-01-02")
	if active && sinceSuccess >= staleHigh {
		return PriorityHigh
	}
	if sinceSuccess >= staleNormal {
		return PriorityNormal
	}
	return PriorityLow
}

// SyncRunner runs one user's sync and the follow-up analytics recomputation.
// *syncer.Executor is the production implementation.
type SyncRunner interface {
	SyncUser(ctx context.Context, userID, trigger, priority string) (*syncer.Result, error)
	Recompute(userID string)
}

// Scheduler drives periodic sync cycles: IDLE, then selecting, then
// dispatching, then IDLE again
type Scheduler struct {
	db       *database.DB
	executor SyncRunner
	tracker  *polar.RateLimitTracker
	logger   *slog.Logger

	interval       time.Duration
	maxUsersPerRun int
	stagger        time.Duration
	syncOnStartup  bool

	mu          sync.Mutex
	inFlight    map[string]bool
	nextCycleAt time.Time

	wg  sync.WaitGroup
	now func() time.Time
}

// Options configures a Scheduler
type Options struct {
	Interval       time.Duration
	MaxUsersPerRun int
	Stagger        time.Duration
	SyncOnStartup  bool
}

// New creates a scheduler
func New(db *database.DB, executor SyncRunner, tracker *polar.RateLimitTracker, opts Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		db:             db,
		executor:       executor,
		tracker:        tracker,
		logger:         logger,
		interval:       opts.Interval,
		maxUsersPerRun: opts.MaxUsersPerRun,
		stagger:        opts.Stagger,
		syncOnStartup:  opts.SyncOnStartup,
		inFlight:       make(map[string]bool),
		now:            time.Now,
	}
}

// Run drives scheduling cycles until the context is cancelled, then waits
// for in-flight syncs to finish their current work
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"interval", s.interval,
		"max_users_per_run", s.maxUsersPerRun,
		"stagger", s.stagger,
	)

	if s.syncOnStartup {
		s.runCycle(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextCycle()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for in-flight syncs")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
			s.setNextCycle()
		}
	}
}

func (s *Scheduler) setNextCycle() {
	s.mu.Lock()
	s.nextCycleAt = s.now().Add(s.interval)
	s.mu.Unlock()
}

// candidate pairs a user with its computed urgency for one cycle
type candidate struct {
	user      *database.User
	priority  Priority
	staleness time.Duration
}

// runCycle selects the most urgent users and dispatches them with a stagger
// delay between starts
func (s *Scheduler) runCycle(ctx context.Context) {
	selected, err := s.selectUsers()
	if err != nil {
		s.logger.Error("scheduling cycle failed", "error", err)
		return
	}

	metrics.SchedulerUsersSelected.Observe(float64(len(selected)))
	if len(selected) == 0 {
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
		return
	}
	metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeDispatched).Inc()

	for i, c := range selected {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.stagger):
			}
		}
		s.dispatch(ctx, c)
	}
}

// selectUsers ranks all users by priority then staleness and takes the top
// slice, skipping users already mid-sync or out of call budget
func (s *Scheduler) selectUsers() ([]candidate, error) {
	users, err := s.db.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list users for scheduling: %w", err)
	}

	now := s.now()
	var candidates []candidate
	for _, u := range users {
		if s.isInFlight(u.UserID) {
			continue
		}
		lastData, err := s.db.GetLatestSampleDate(u.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to rank user %s: %w", u.UserID, err)
		}
		p := ComputePriority(u, lastData, now, s.interval)

		staleness := time.Duration(0)
		if u.LastSuccessAt != nil {
			staleness = now.Sub(time.Unix(*u.LastSuccessAt, 0))
		} else {
			staleness = now.Sub(time.Unix(u.CreatedAt, 0))
		}

		// skip users that would not get through a full sync this cycle
		if short, _ := s.tracker.Remaining(u.UserID); short < len(polar.AllEndpoints) {
			s.logger.Warn("skipping user, call budget too low", "user_id", u.UserID, "short_remaining", short)
			metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeBudgetLow).Inc()
			continue
		}

		candidates = append(candidates, candidate{user: u, priority: p, staleness: staleness})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if priorityRank[candidates[i].priority] != priorityRank[candidates[j].priority] {
			return priorityRank[candidates[i].priority] < priorityRank[candidates[j].priority]
		}
		return candidates[i].staleness > candidates[j].staleness
	})

	if len(candidates) > s.maxUsersPerRun {
		candidates = candidates[:s.maxUsersPerRun]
	}
	return candidates, nil
}

// dispatch hands one user to the executor in its own goroutine. The in-flight
// guard stays held through sync and analytics recomputation, so the next
// cycle cannot stack work for the same user.
func (s *Scheduler) dispatch(ctx context.Context, c candidate) {
	if !s.markInFlight(c.user.UserID) {
		return
	}

	metrics.SchedulerPriorityTotal.WithLabelValues(string(c.priority)).Inc()
	metrics.SyncsInFlight.Inc()
	s.wg.Add(1)

	go func() {
		defer func() {
			s.clearInFlight(c.user.UserID)
			metrics.SyncsInFlight.Dec()
			s.wg.Done()
		}()

		result, err := s.executor.SyncUser(ctx, c.user.UserID, syncer.TriggerScheduled, string(c.priority))
		if err != nil {
			s.logger.Error("scheduled sync failed", "user_id", c.user.UserID, "error", err)
			return
		}
		if len(result.EndpointCounts) > 0 {
			s.executor.Recompute(c.user.UserID)
		}
	}()
}

// SyncNow runs one sync immediately, bypassing selection but using the same
// executor and audit path as scheduled syncs. Returns an error if the user
// already has a sync in flight. The result is returned as soon as the sync
// itself finishes; analytics recomputation continues in the background with
// the in-flight guard still held, so a scheduled sync cannot stack on top
// of it.
func (s *Scheduler) SyncNow(ctx context.Context, userID, trigger string) (*syncer.Result, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q", userID)
	}
	lastData, err := s.db.GetLatestSampleDate(userID)
	if err != nil {
		return nil, err
	}

	if !s.markInFlight(userID) {
		return nil, fmt.Errorf("sync already in progress for user %q", userID)
	}
	metrics.SyncsInFlight.Inc()
	s.wg.Add(1)
	release := func() {
		s.clearInFlight(userID)
		metrics.SyncsInFlight.Dec()
		s.wg.Done()
	}

	priority := ComputePriority(user, lastData, s.now(), s.interval)
	result, err := s.executor.SyncUser(ctx, userID, trigger, string(priority))
	if err != nil || len(result.EndpointCounts) == 0 {
		release()
		return result, err
	}

	go func() {
		defer release()
		s.executor.Recompute(userID)
	}()
	return result, nil
}

// Status reports scheduler state for the sync status endpoint
type Status struct {
	NextCycleAt time.Time `json:"next_cycle_at"`
	InFlight    int       `json:"in_flight"`
}

// GetStatus returns a snapshot of the scheduler's state
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		NextCycleAt: s.nextCycleAt,
		InFlight:    len(s.inFlight),
	}
}

func (s *Scheduler) isInFlight(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[userID]
}

// markInFlight claims the user's sync slot; false means one is already held
func (s *Scheduler) markInFlight(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *Scheduler) clearInFlight(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}
