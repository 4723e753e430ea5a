package stats

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndTotals(t *testing.T) {
	s := setupTestStore(t)

	for range 3 {
		if err := s.Record(1); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(2); err != nil {
		t.Fatalf("Record: %v", err)
	}

	totals, err := s.Totals()
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("len(totals) = %d, want 2", len(totals))
	}
	if totals[0].PostID != 1 || totals[0].Views != 3 {
		t.Errorf("totals[0] = %+v, want post 1 with 3 views", totals[0])
	}
	if totals[1].PostID != 2 || totals[1].Views != 1 {
		t.Errorf("totals[1] = %+v, want post 2 with 1 view", totals[1])
	}
}

func TestDailyBuckets(t *testing.T) {
	s := setupTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.now = func() time.Time { return base.AddDate(0, 0, 1) }
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	daily, err := s.Daily(1, 7)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("len(daily) = %d, want 2", len(daily))
	}
	if daily[0].Day != "2026-08-01" || daily[0].Views != 1 {
		t.Errorf("daily[0] = %+v", daily[0])
	}
	if daily[1].Day != "2026-08-02" || daily[1].Views != 2 {
		t.Errorf("daily[1] = %+v", daily[1])
	}
}

func TestCleanup(t *testing.T) {
	s := setupTestStore(t)

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.AddDate(0, 0, -400) }
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.now = func() time.Time { return base }
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	deleted, err := s.Cleanup(365)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	totals, err := s.Totals()
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(totals) != 1 || totals[0].Views != 1 {
		t.Errorf("totals after cleanup = %+v", totals)
	}
}

func TestCleanupSchedulerRunsImmediately(t *testing.T) {
	s := setupTestStore(t)

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.AddDate(0, 0, -400) }
	if err := s.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.now = func() time.Time { return base }
	if err := s.Record(2); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Expired rows must be gone as soon as the scheduler starts, not a
	// full interval later.
	stop := s.StartCleanupScheduler(365, time.Hour)
	defer stop()

	totals, err := s.Totals()
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(totals) != 1 || totals[0].PostID != 2 {
		t.Errorf("totals after scheduler start = %+v, want only post 2", totals)
	}
}
