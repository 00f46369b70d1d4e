package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertPreservesSignalState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRelationshipStore()

	rel := models.BellwetherRelationship{
		FacilityID:           "fac-b",
		BellwetherFacilityID: "fac-a",
		TimesPreceded:        3,
		TotalSurveyCycles:    4,
		ConfidenceScore:      0.6,
	}
	if err := store.Upsert(ctx, rel); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := day(2025, time.June, 10)
	if err := store.UpdateSignal(ctx, rel.Key(), models.ActiveSignal(day(2025, time.June, 7)), now); err != nil {
		t.Fatalf("update signal: %v", err)
	}

	// A re-mine replaces the aggregates but must not clear the signal.
	rel.TimesPreceded = 4
	rel.ConfidenceScore = 0.72
	if err := store.Upsert(ctx, rel); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	found, err := store.ListForFacility(ctx, "fac-b")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := found[0]
	if got.TimesPreceded != 4 || got.ConfidenceScore != 0.72 {
		t.Fatalf("aggregates not replaced: %+v", got)
	}
	if !got.Signal.Active() {
		t.Fatalf("upsert cleared the live signal")
	}
	if got.DaysSinceSignal != 3 {
		t.Fatalf("upsert reset the signal age, got %d", got.DaysSinceSignal)
	}
}

func TestUpsertRejectsSelfReference(t *testing.T) {
	store := NewMemoryRelationshipStore()
	err := store.Upsert(context.Background(), models.BellwetherRelationship{
		FacilityID:           "fac-a",
		BellwetherFacilityID: "fac-a",
	})
	if err == nil {
		t.Fatalf("expected self-referential upsert to fail")
	}
}

func TestUpdateSignalUnknownKey(t *testing.T) {
	store := NewMemoryRelationshipStore()
	err := store.UpdateSignal(context.Background(),
		models.RelationshipKey{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"},
		models.InactiveSignal(), day(2025, time.June, 10))
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshDaysSinceTouchesOnlyActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRelationshipStore()

	active := models.BellwetherRelationship{FacilityID: "fac-b", BellwetherFacilityID: "fac-a"}
	idle := models.BellwetherRelationship{FacilityID: "fac-c", BellwetherFacilityID: "fac-a"}
	if err := store.Upsert(ctx, active); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, idle); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpdateSignal(ctx, active.Key(), models.ActiveSignal(day(2025, time.June, 1)), day(2025, time.June, 1)); err != nil {
		t.Fatalf("update signal: %v", err)
	}

	touched, err := store.RefreshDaysSince(ctx, day(2025, time.June, 15))
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if touched != 1 {
		t.Fatalf("expected 1 row touched, got %d", touched)
	}

	found, _ := store.ListForFacility(ctx, "fac-b")
	if found[0].DaysSinceSignal != 14 {
		t.Fatalf("expected refreshed age 14, got %d", found[0].DaysSinceSignal)
	}
}

func TestRecordStoreScopeFiltering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	store.AddFacility(models.FacilityLocation{FacilityID: "fac-1", State: "CA", County: "Fresno"})
	store.AddFacility(models.FacilityLocation{FacilityID: "fac-2", State: "CA", County: "Kern"})
	store.AddFacility(models.FacilityLocation{FacilityID: "fac-3", State: "TX", County: "Travis"})

	state, err := store.FacilitiesInScope(ctx, "ca", "")
	if err != nil {
		t.Fatalf("state scope: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("expected 2 CA facilities, got %d", len(state))
	}

	county, err := store.FacilitiesInScope(ctx, "CA", "fresno")
	if err != nil {
		t.Fatalf("county scope: %v", err)
	}
	if len(county) != 1 || county[0].FacilityID != "fac-1" {
		t.Fatalf("unexpected county scope result: %+v", county)
	}
}

func TestRecordStoreLatestInspection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	store.AddSurvey(models.SurveyRecord{FacilityID: "fac-1", Date: day(2024, time.March, 1), Type: models.SurveyTypeHealthStandard})
	store.AddSurvey(models.SurveyRecord{FacilityID: "fac-1", Date: day(2024, time.October, 5), Type: models.SurveyTypeHealthStandard})
	store.AddSurvey(models.SurveyRecord{FacilityID: "fac-1", Date: day(2024, time.December, 1), Type: models.SurveyTypeFireSafety})

	latest, ok, err := store.LatestInspection(ctx, "fac-1", models.SurveyTypeHealthStandard)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok || !latest.Equal(day(2024, time.October, 5)) {
		t.Fatalf("unexpected latest inspection: %v (ok=%v)", latest, ok)
	}

	_, ok, err = store.LatestInspection(ctx, "fac-2", models.SurveyTypeHealthStandard)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ok {
		t.Fatalf("expected no history for fac-2")
	}
}

func TestRecordStoreCitationWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	store.AddFacility(models.FacilityLocation{FacilityID: "fac-1", State: "CA"})
	store.AddSurvey(models.SurveyRecord{
		FacilityID:   "fac-1",
		Date:         day(2025, time.January, 10),
		Type:         models.SurveyTypeHealthStandard,
		CitationTags: []string{"F684", "F684", "F880"},
	})
	store.AddSurvey(models.SurveyRecord{
		FacilityID:   "fac-1",
		Date:         day(2025, time.March, 1),
		Type:         models.SurveyTypeComplaint,
		CitationTags: []string{"F684"},
	})

	counts, err := store.StateCitationCounts(ctx, "CA", day(2025, time.January, 1), day(2025, time.March, 1))
	if err != nil {
		t.Fatalf("state counts: %v", err)
	}
	// The March 1 record sits on the exclusive end of the window.
	if counts["F684"] != 2 || counts["F880"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
