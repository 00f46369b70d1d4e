package engine

import (
	"context"
	"testing"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/repo"
)

func seedRelationship(t *testing.T, rels *repo.MemoryRelationshipStore, rel models.BellwetherRelationship) {
	t.Helper()
	if err := rels.Upsert(context.Background(), rel); err != nil {
		t.Fatalf("seed relationship: %v", err)
	}
}

func TestLifecycleActivatesSignal(t *testing.T) {
	today := date(2025, time.June, 10)
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           10,
		ConfidenceScore:      0.8,
	})
	records.AddSurvey(models.SurveyRecord{
		FacilityID: "fac-a",
		Date:       date(2025, time.June, 7),
		Type:       models.SurveyTypeHealthStandard,
	})

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return today }

	report, err := mgr.UpdateSignals(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SignalsActivated != 1 {
		t.Fatalf("expected 1 activation, got %d", report.SignalsActivated)
	}
	if report.BellwethersSurveyed != 1 {
		t.Fatalf("expected 1 bellwether surveyed, got %d", report.BellwethersSurveyed)
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	rel := found[0]
	got, ok := rel.Signal.Date()
	if !ok {
		t.Fatalf("expected an active signal")
	}
	if !got.Equal(date(2025, time.June, 7)) {
		t.Fatalf("unexpected signal date: %v", got)
	}
	if rel.DaysSinceSignal != 3 {
		t.Fatalf("expected days since signal 3, got %d", rel.DaysSinceSignal)
	}
}

func TestLifecycleRerunDoesNotDoubleActivate(t *testing.T) {
	today := date(2025, time.June, 10)
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           10,
	})
	records.AddSurvey(models.SurveyRecord{
		FacilityID: "fac-a",
		Date:       date(2025, time.June, 7),
		Type:       models.SurveyTypeHealthStandard,
	})

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return today }

	if _, err := mgr.UpdateSignals(context.Background(), 0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := mgr.UpdateSignals(context.Background(), 0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.SignalsActivated != 0 {
		t.Fatalf("re-run must not re-activate, got %d", second.SignalsActivated)
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	got, _ := found[0].Signal.Date()
	if !got.Equal(date(2025, time.June, 7)) {
		t.Fatalf("signal date moved on re-run: %v", got)
	}
}

func TestLifecycleSignalDatesOnlyMoveForward(t *testing.T) {
	today := date(2025, time.June, 10)
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           10,
	})
	// The signal already reflects June 8; a June 5 record in the same
	// window must not pull it backward.
	if err := rels.UpdateSignal(context.Background(), models.RelationshipKey{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"},
		models.ActiveSignal(date(2025, time.June, 8)), today); err != nil {
		t.Fatalf("seed signal: %v", err)
	}
	records.AddSurvey(models.SurveyRecord{
		FacilityID: "fac-a",
		Date:       date(2025, time.June, 5),
		Type:       models.SurveyTypeHealthStandard,
	})

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return today }

	report, err := mgr.UpdateSignals(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SignalsActivated != 0 {
		t.Fatalf("already-active signal must not count as an activation")
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	got, _ := found[0].Signal.Date()
	if !got.Equal(date(2025, time.June, 8)) {
		t.Fatalf("signal date moved backward to %v", got)
	}
}

func TestLifecycleDecaysStaleSignals(t *testing.T) {
	today := date(2025, time.June, 10)
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           10,
	})
	// 40 days old exceeds max(10, 30).
	if err := rels.UpdateSignal(context.Background(), models.RelationshipKey{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"},
		models.ActiveSignal(date(2025, time.May, 1)), today); err != nil {
		t.Fatalf("seed signal: %v", err)
	}

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return today }

	report, err := mgr.UpdateSignals(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SignalsCleared != 1 {
		t.Fatalf("expected 1 decay, got %d", report.SignalsCleared)
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	if found[0].Signal.Active() {
		t.Fatalf("stale signal should have decayed")
	}
	if found[0].DaysSinceSignal != 0 {
		t.Fatalf("inactive signal must carry no age, got %d", found[0].DaysSinceSignal)
	}
}

func TestLifecycleDecayHonoursThirtyDayFloor(t *testing.T) {
	today := date(2025, time.June, 10)
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	// Tight historical gaps still get the 30-day floor: a 20-day-old
	// signal on a max-gap-10 relationship survives.
	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           10,
	})
	if err := rels.UpdateSignal(context.Background(), models.RelationshipKey{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"},
		models.ActiveSignal(date(2025, time.May, 21)), today); err != nil {
		t.Fatalf("seed signal: %v", err)
	}

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return today }

	report, err := mgr.UpdateSignals(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SignalsCleared != 0 {
		t.Fatalf("signal inside the floor must not decay, got %d cleared", report.SignalsCleared)
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	if !found[0].Signal.Active() {
		t.Fatalf("expected the signal to remain active")
	}
}

func TestLifecycleRefreshesSignalAges(t *testing.T) {
	records := repo.NewMemoryRecordStore()
	rels := repo.NewMemoryRelationshipStore()

	seedRelationship(t, rels, models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		MaxDaysGap:           40,
	})
	start := date(2025, time.June, 10)
	if err := rels.UpdateSignal(context.Background(), models.RelationshipKey{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"},
		models.ActiveSignal(date(2025, time.June, 8)), start); err != nil {
		t.Fatalf("seed signal: %v", err)
	}

	mgr := NewLifecycleManager(nil, records, rels)
	mgr.now = func() time.Time { return date(2025, time.June, 15) }

	if _, err := mgr.UpdateSignals(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, _ := rels.ListForFacility(context.Background(), "fac-b")
	if found[0].DaysSinceSignal != 7 {
		t.Fatalf("expected refreshed age 7, got %d", found[0].DaysSinceSignal)
	}
}
