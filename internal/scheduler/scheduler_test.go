package scheduler

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"polar-flow-sync/internal/analytics"
	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/polar"
	"polar-flow-sync/internal/syncer"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *int64 {
	ts := testNow.Add(-d).Unix()
	return &ts
}

func TestComputePriority(t *testing.T) {
	cycle := 15 * time.Minute
	validToken := testNow.Add(24 * time.Hour).Unix()
	recentData := testNow.AddDate(0, 0, -1).Format("2006-01-02")
	oldData := testNow.AddDate(0, 0, -6).Format("2006-01-02")

	tests := []struct {
		name     string
		user     database.User
		lastData string
		want     Priority
	}{
		{
			name: "never synced",
			user: database.User{TokenExpiresAt: validToken},
			want: PriorityCritical,
		},
		{
			name:     "stale past two days",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(49 * time.Hour)},
			lastData: recentData,
			want:     PriorityCritical,
		},
		{
			name:     "token expires within the cycle",
			user:     database.User{TokenExpiresAt: testNow.Add(5 * time.Minute).Unix(), LastSuccessAt: ago(time.Hour)},
			lastData: recentData,
			want:     PriorityCritical,
		},
		{
			name:     "active user past twelve hours",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(13 * time.Hour)},
			lastData: recentData,
			want:     PriorityHigh,
		},
		{
			name:     "active user past one day",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(25 * time.Hour)},
			lastData: recentData,
			want:     PriorityHigh, // fresh data keeps the tighter 12h target
		},
		{
			name:     "quiet device past one day",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(25 * time.Hour)},
			lastData: oldData,
			want:     PriorityNormal,
		},
		{
			name: "no stored data past one day",
			user: database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(30 * time.Hour)},
			want: PriorityNormal,
		},
		{
			name:     "quiet device under one day",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(13 * time.Hour)},
			lastData: oldData,
			want:     PriorityLow, // without fresh data the 24h band applies
		},
		{
			name:     "stale past four days",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(4 * 24 * time.Hour)},
			lastData: oldData,
			want:     PriorityCritical, // two-day staleness dominates until dormancy
		},
		{
			name:     "dormant past seven days",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(8 * 24 * time.Hour)},
			lastData: oldData,
			want:     PriorityLow,
		},
		{
			name: "dormant with expired token stays low",
			user: database.User{TokenExpiresAt: testNow.Add(-time.Hour).Unix(), LastSuccessAt: ago(10 * 24 * time.Hour)},
			want: PriorityLow,
		},
		{
			name:     "freshly synced",
			user:     database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(time.Hour)},
			lastData: recentData,
			want:     PriorityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputePriority(&tt.user, tt.lastData, testNow, cycle); got != tt.want {
				t.Errorf("ComputePriority() = %q, want %q", got, tt.want)
			}
		})
	}
}

// every priority band must be producible from some observable state
func TestComputePriorityCoversAllBands(t *testing.T) {
	cycle := 15 * time.Minute
	validToken := testNow.Add(24 * time.Hour).Unix()

	seen := make(map[Priority]bool)
	for hours := 0; hours <= 200; hours++ {
		u := database.User{TokenExpiresAt: validToken, LastSuccessAt: ago(time.Duration(hours) * time.Hour)}
		seen[ComputePriority(&u, testNow.AddDate(0, 0, -1).Format("2006-01-02"), testNow, cycle)] = true
		seen[ComputePriority(&u, "", testNow, cycle)] = true
	}

	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow} {
		if !seen[p] {
			t.Errorf("priority %q is unreachable", p)
		}
	}
}

type noopFetcher struct{}

func (noopFetcher) Fetch(ctx context.Context, endpoint polar.Endpoint, accessToken string) ([]polar.Sample, error) {
	return nil, nil
}

// setupScheduler builds a scheduler over a temp database. A nil runner gets
// a real executor backed by the noop fetcher.
func setupScheduler(t *testing.T, runner SyncRunner, tracker *polar.RateLimitTracker, opts Options) (*Scheduler, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if tracker == nil {
		tracker = polar.NewRateLimitTracker(15*time.Minute, 500, 5000)
	}
	if runner == nil {
		engine := analytics.NewEngine(db, slog.Default())
		runner = syncer.NewExecutor(db, noopFetcher{}, tracker, engine, time.Second, slog.Default())
	}

	s := New(db, runner, tracker, opts, slog.Default())
	s.now = func() time.Time { return testNow }
	return s, db
}

func addUser(t *testing.T, db *database.DB, userID string, lastSuccess *int64) {
	t.Helper()
	if err := db.UpsertUser(&database.User{
		UserID:         userID,
		AccessToken:    "tok",
		TokenExpiresAt: testNow.Add(24 * time.Hour).Unix(),
		LastSuccessAt:  lastSuccess,
	}); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
}

// seedSample makes the user look active by storing one fresh data point
func seedSample(t *testing.T, db *database.DB, userID string) {
	t.Helper()
	point := database.SeriesPoint{Date: testNow.AddDate(0, 0, -1).Format("2006-01-02"), Value: 50}
	if err := db.UpsertSamples(userID, polar.MetricHRVRMSSD, []database.SeriesPoint{point}); err != nil {
		t.Fatalf("failed to seed sample: %v", err)
	}
}

func TestSelectUsersRanksByUrgency(t *testing.T) {
	s, db := setupScheduler(t, nil, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 2})

	addUser(t, db, "fresh", ago(time.Hour))
	addUser(t, db, "stale-active", ago(13*time.Hour))
	seedSample(t, db, "stale-active")
	addUser(t, db, "never-synced", nil)

	selected, err := s.selectUsers()
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}

	if len(selected) != 2 {
		t.Fatalf("cap at 2 users per run, got %d", len(selected))
	}
	if selected[0].user.UserID != "never-synced" {
		t.Errorf("critical user should rank first, got %q", selected[0].user.UserID)
	}
	if selected[1].user.UserID != "stale-active" {
		t.Errorf("high priority user should rank second, got %q", selected[1].user.UserID)
	}
}

func TestSelectUsersSkipsLowBudget(t *testing.T) {
	// short-window ceiling below the endpoint count means no user can
	// finish a full sync this cycle
	tracker := polar.NewRateLimitTracker(15*time.Minute, len(polar.AllEndpoints)-1, 5000)
	s, db := setupScheduler(t, nil, tracker, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})

	addUser(t, db, "u1", nil)

	selected, err := s.selectUsers()
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if len(selected) != 0 {
		t.Errorf("expected no candidates with the budget exhausted, got %d", len(selected))
	}
}

func TestSelectUsersSkipsInFlight(t *testing.T) {
	s, db := setupScheduler(t, nil, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})

	addUser(t, db, "u1", nil)
	addUser(t, db, "u2", nil)
	s.markInFlight("u1")

	selected, err := s.selectUsers()
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if len(selected) != 1 || selected[0].user.UserID != "u2" {
		t.Errorf("in-flight user must be skipped, got %+v", selected)
	}
}

func TestMarkInFlightSingleClaim(t *testing.T) {
	s, _ := setupScheduler(t, nil, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})

	if !s.markInFlight("u1") {
		t.Fatal("first claim should succeed")
	}
	if s.markInFlight("u1") {
		t.Error("second claim for the same user must fail")
	}
	s.clearInFlight("u1")
	if !s.markInFlight("u1") {
		t.Error("claim after clear should succeed")
	}
}

func TestSyncNowUnknownUser(t *testing.T) {
	s, _ := setupScheduler(t, nil, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})

	if _, err := s.SyncNow(context.Background(), "nobody", syncer.TriggerManual); err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestSyncNowRejectsConcurrentSync(t *testing.T) {
	s, db := setupScheduler(t, nil, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})
	addUser(t, db, "u1", nil)

	s.markInFlight("u1")
	if _, err := s.SyncNow(context.Background(), "u1", syncer.TriggerManual); err == nil {
		t.Error("expected error while a sync is in flight")
	}
	s.clearInFlight("u1")

	if _, err := s.SyncNow(context.Background(), "u1", syncer.TriggerManual); err != nil {
		t.Errorf("sync after clear failed: %v", err)
	}
	s.wg.Wait()
}

// blockingRunner reports a successful sync instantly, then parks inside
// Recompute until released
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) SyncUser(ctx context.Context, userID, trigger, priority string) (*syncer.Result, error) {
	return &syncer.Result{
		JobID:          "job-1",
		UserID:         userID,
		Status:         database.SyncStatusSuccess,
		EndpointCounts: map[string]int{string(polar.EndpointSleep): 1},
		EndpointErrors: map[string]database.EndpointError{},
	}, nil
}

func (r *blockingRunner) Recompute(userID string) {
	close(r.started)
	<-r.release
}

func TestSyncNowReturnsBeforeRecompute(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, db := setupScheduler(t, runner, nil, Options{Interval: 15 * time.Minute, MaxUsersPerRun: 10})
	addUser(t, db, "u1", nil)

	type outcome struct {
		result *syncer.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.SyncNow(context.Background(), "u1", syncer.TriggerManual)
		done <- outcome{result, err}
	}()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SyncNow did not return while recomputation was still pending")
	}
	if got.err != nil {
		t.Fatalf("sync failed: %v", got.err)
	}
	if got.result.Status != database.SyncStatusSuccess {
		t.Errorf("status = %q, want success", got.result.Status)
	}

	// recomputation runs in the background with the in-flight guard held,
	// so a concurrent sync for the same user is still rejected
	<-runner.started
	if !s.isInFlight("u1") {
		t.Error("in-flight guard must stay held through recomputation")
	}
	if _, err := s.SyncNow(context.Background(), "u1", syncer.TriggerManual); err == nil {
		t.Error("expected rejection while recomputation is running")
	}

	close(runner.release)
	s.wg.Wait()
	if s.isInFlight("u1") {
		t.Error("in-flight guard should clear once recomputation finishes")
	}
}
