package database

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)

	u := &User{
		UserID:         "user-1",
		AccessToken:    "tok-a",
		TokenExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	if err := db.UpsertUser(u); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := db.GetUser("user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.AccessToken != "tok-a" {
		t.Fatalf("unexpected user: %+v", got)
	}

	// second upsert replaces the token but keeps sync facts
	u.AccessToken = "tok-b"
	if err := db.UpsertUser(u); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, _ = db.GetUser("user-1")
	if got.AccessToken != "tok-b" {
		t.Errorf("token not replaced, got %q", got.AccessToken)
	}

	missing, err := db.GetUser("nobody")
	if err != nil {
		t.Fatalf("get missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}
}

func TestUpdateSyncTimes(t *testing.T) {
	db := setupTestDB(t)
	mustUpsertUser(t, db, "user-1")

	now := time.Now()
	if err := db.UpdateSyncTimes("user-1", now, false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	u, _ := db.GetUser("user-1")
	if u.LastSyncedAt == nil || u.LastSuccessAt != nil {
		t.Fatalf("failed attempt should advance only last_synced_at: %+v", u)
	}

	if err := db.UpdateSyncTimes("user-1", now, true); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	u, _ = db.GetUser("user-1")
	if u.LastSuccessAt == nil {
		t.Fatal("successful attempt should advance last_success_at")
	}

	if err := db.UpdateSyncTimes("nobody", now, true); err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestSeriesUpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)

	points := []SeriesPoint{
		{Date: "2026-08-01", Value: 50},
		{Date: "2026-08-02", Value: 55},
	}
	if err := db.UpsertSamples("user-1", "hrv_rmssd", points); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// re-sync the same date with a corrected value
	if err := db.UpsertSamples("user-1", "hrv_rmssd", []SeriesPoint{{Date: "2026-08-02", Value: 60}}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := db.GetSeries("user-1", "hrv_rmssd", "2026-08-01")
	if err != nil {
		t.Fatalf("get series failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[1].Value != 60 {
		t.Errorf("expected overwritten value 60, got %v", got[1].Value)
	}
}

func TestGetLatestAndEarliestSample(t *testing.T) {
	db := setupTestDB(t)

	if err := db.UpsertSamples("user-1", "sleep_score", []SeriesPoint{
		{Date: "2026-08-01", Value: 70},
		{Date: "2026-08-10", Value: 80},
		{Date: "2026-08-05", Value: 75},
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	latest, err := db.GetLatestSample("user-1", "sleep_score")
	if err != nil {
		t.Fatalf("get latest failed: %v", err)
	}
	if latest.Date != "2026-08-10" || latest.Value != 80 {
		t.Errorf("unexpected latest: %+v", latest)
	}

	earliest, err := db.GetEarliestSampleDate("user-1")
	if err != nil {
		t.Fatalf("get earliest failed: %v", err)
	}
	if earliest != "2026-08-01" {
		t.Errorf("expected 2026-08-01, got %q", earliest)
	}

	// the latest date spans all metrics for the user
	if err := db.UpsertSamples("user-1", "hrv_rmssd", []SeriesPoint{{Date: "2026-08-12", Value: 55}}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	newest, err := db.GetLatestSampleDate("user-1")
	if err != nil {
		t.Fatalf("get latest date failed: %v", err)
	}
	if newest != "2026-08-12" {
		t.Errorf("expected 2026-08-12, got %q", newest)
	}

	empty, err := db.GetEarliestSampleDate("nobody")
	if err != nil {
		t.Fatalf("get earliest for empty user failed: %v", err)
	}
	if empty != "" {
		t.Errorf("expected empty date, got %q", empty)
	}
	if noData, err := db.GetLatestSampleDate("nobody"); err != nil || noData != "" {
		t.Errorf("expected empty latest date, got %q (%v)", noData, err)
	}
}

func TestBaselineReplaceWholesale(t *testing.T) {
	db := setupTestDB(t)

	v := func(x float64) *float64 { return &x }
	first := &Baseline{
		UserID: "user-1", Metric: "hrv_rmssd",
		MeanAll: v(50), Mean30d: v(49), Median: v(50), Q1: v(45), Q3: v(55), IQR: v(10),
		SampleCount: 30, Status: BaselineReady,
	}
	if err := db.ReplaceBaseline(first); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	// the replacement has fewer populated fields; nothing from the first
	// snapshot may leak through
	second := &Baseline{
		UserID: "user-1", Metric: "hrv_rmssd",
		SampleCount: 5, Status: BaselineInsufficient,
	}
	if err := db.ReplaceBaseline(second); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	got, err := db.GetBaseline("user-1", "hrv_rmssd")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != BaselineInsufficient || got.SampleCount != 5 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.Mean30d != nil || got.Q1 != nil {
		t.Error("stale fields survived the wholesale replace")
	}

	all, err := db.GetBaselines("user-1")
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one baseline row, got %d", len(all))
	}
}

func TestPatternRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	p := &Pattern{
		UserID:          "user-1",
		Name:            "overtraining_risk",
		PatternType:     PatternTypeComposite,
		Score:           40,
		Confidence:      0.75,
		Significance:    SignificanceMedium,
		MetricsInvolved: []string{"hrv_rmssd", "sleep_score"},
		Details:         map[string]any{"risk_factors": []any{"HRV trending down 6.0%"}},
		SampleCount:     3,
	}
	if err := db.ReplacePattern(p); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	p.Score = 15
	p.Significance = SignificanceLow
	if err := db.ReplacePattern(p); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	got, err := db.GetPatterns("user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one pattern, got %d", len(got))
	}
	if got[0].Score != 15 || got[0].Significance != SignificanceLow {
		t.Errorf("replace did not overwrite: %+v", got[0])
	}
	if len(got[0].MetricsInvolved) != 2 {
		t.Errorf("metrics involved lost in round trip: %+v", got[0].MetricsInvolved)
	}
}

func TestSyncLogHistoryAndStats(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	statuses := []string{SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed}
	for i, status := range statuses {
		entry := &SyncLogEntry{
			JobID:          "job-" + status,
			UserID:         "user-1",
			TriggerSource:  "scheduled",
			Priority:       "normal",
			Status:         status,
			StartedAt:      now.Add(time.Duration(i) * time.Minute).Unix(),
			FinishedAt:     now.Add(time.Duration(i)*time.Minute + 30*time.Second).Unix(),
			DurationMs:     30000,
			EndpointCounts: map[string]int{"sleep": 3},
			EndpointErrors: map[string]EndpointError{},
		}
		if err := db.InsertSyncLog(entry); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	history, err := db.GetSyncHistory("user-1", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Status != SyncStatusFailed {
		t.Errorf("expected newest first, got %q", history[0].Status)
	}
	if history[0].EndpointCounts["sleep"] != 3 {
		t.Errorf("endpoint counts lost: %+v", history[0].EndpointCounts)
	}

	stats, err := db.GetSyncStats(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Success != 1 || stats.Partial != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	want := 2.0 / 3.0
	if stats.SuccessRate < want-0.001 || stats.SuccessRate > want+0.001 {
		t.Errorf("expected success rate %.3f, got %.3f", want, stats.SuccessRate)
	}
}

func mustUpsertUser(t *testing.T, db *DB, userID string) {
	t.Helper()
	if err := db.UpsertUser(&User{
		UserID:         userID,
		AccessToken:    "tok",
		TokenExpiresAt: time.Now().Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("failed to upsert user: %v", err)
	}
}
