package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/repo"
	"github.com/facilityiq/survey-intel/internal/utils"
)

type fakeCitationStore struct {
	facility       map[string]int
	stateRecent    map[string]int
	statePrior     map[string]int
	stateYear      map[string]int
	national       map[string]int
	stateCount     int
	nationalCount  int
	stateErr       error
	facilityErr    error
	trendWindowEnd time.Time
}

func (f *fakeCitationStore) FacilityCitationCounts(context.Context, string, time.Time) (map[string]int, error) {
	if f.facilityErr != nil {
		return nil, f.facilityErr
	}
	return f.facility, nil
}

func (f *fakeCitationStore) StateCitationCounts(_ context.Context, _ string, start, end time.Time) (map[string]int, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	switch {
	case end.Equal(f.trendWindowEnd) && f.trendWindowEnd.AddDate(0, -trendWindowMonths, 0).Equal(start):
		return f.stateRecent, nil
	case end.Equal(f.trendWindowEnd.AddDate(0, -trendWindowMonths, 0)):
		return f.statePrior, nil
	default:
		return f.stateYear, nil
	}
}

func (f *fakeCitationStore) NationalCitationCounts(context.Context, time.Time, time.Time) (map[string]int, error) {
	return f.national, nil
}

func (f *fakeCitationStore) FacilityCount(_ context.Context, state string) (int, error) {
	if state == "" {
		return f.nationalCount, nil
	}
	return f.stateCount, nil
}

func riskFixture(t *testing.T, today time.Time) (*repo.MemoryRecordStore, *fakeCitationStore) {
	t.Helper()
	records := repo.NewMemoryRecordStore()
	records.AddFacility(models.FacilityLocation{FacilityID: "fac-1", State: "CA"})

	citations := &fakeCitationStore{
		facility: map[string]int{"F684": 2, "F880": 1},
		// F684 doubled state-wide; F689 appeared; F758 is flat.
		stateRecent:    map[string]int{"F684": 8, "F689": 4, "F758": 5},
		statePrior:     map[string]int{"F684": 4, "F758": 5},
		stateYear:      map[string]int{"F684": 12, "F689": 4, "F550": 30},
		national:       map[string]int{"F684": 60, "F689": 20, "F550": 30},
		stateCount:     100,
		nationalCount:  1000,
		trendWindowEnd: today,
	}
	return records, citations
}

func TestProfileTierOrderingAndDedup(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	profile, err := agg.Profile(context.Background(), "fac-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.State != "CA" {
		t.Fatalf("unexpected state: %s", profile.State)
	}

	byTag := make(map[string]models.RiskChecklistEntry)
	for i, entry := range profile.PrepChecklist {
		if prev, ok := byTag[entry.Tag]; ok {
			t.Fatalf("tag %s listed twice (%+v, %+v)", entry.Tag, prev, entry)
		}
		byTag[entry.Tag] = entry
		if i > 0 && entry.Tier < profile.PrepChecklist[i-1].Tier {
			t.Fatalf("checklist tiers out of order at %d: %+v", i, profile.PrepChecklist)
		}
	}

	// F684: cited here twice and up 100% state-wide, claimed by tier 1
	// even though tiers 2 and 4 would also match it.
	if entry := byTag["F684"]; entry.Tier != models.TierFacilityTrending {
		t.Fatalf("expected F684 in tier 1, got %+v", entry)
	}
	// F689: trending but never cited here.
	if entry := byTag["F689"]; entry.Tier != models.TierStateTrending {
		t.Fatalf("expected F689 in tier 3, got %+v", entry)
	}
	// F550: state rate 30 per 100 vs 3 nationally.
	if entry := byTag["F550"]; entry.Tier != models.TierStateVsNational {
		t.Fatalf("expected F550 in tier 4, got %+v", entry)
	}
	// F880: single citation, not trending; F758: flat trend.
	if _, ok := byTag["F880"]; ok {
		t.Fatalf("single non-trending citation must not enter the checklist")
	}
	if _, ok := byTag["F758"]; ok {
		t.Fatalf("flat state trend must not enter the checklist")
	}
}

func TestProfileRecidivismTier(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)
	// No state trends at all: repeat citations still make the list.
	citations.stateRecent = map[string]int{}
	citations.statePrior = map[string]int{}

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	profile, err := agg.Profile(context.Background(), "fac-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, entry := range profile.PrepChecklist {
		if entry.Tag == "F684" {
			found = true
			if entry.Tier != models.TierRecidivism {
				t.Fatalf("expected F684 in tier 2, got %+v", entry)
			}
			if entry.FacilityCitations != 2 {
				t.Fatalf("expected citation count 2, got %d", entry.FacilityCitations)
			}
		}
	}
	if !found {
		t.Fatalf("repeat citation missing from checklist: %+v", profile.PrepChecklist)
	}
}

func TestProfileChecklistCap(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)

	recent := make(map[string]int)
	prior := make(map[string]int)
	for i := 0; i < 30; i++ {
		tag := fmt.Sprintf("F%03d", i)
		recent[tag] = 10
		prior[tag] = 1
	}
	citations.stateRecent = recent
	citations.statePrior = prior

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	profile, err := agg.Profile(context.Background(), "fac-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profile.PrepChecklist) != checklistCap {
		t.Fatalf("expected checklist capped at %d, got %d", checklistCap, len(profile.PrepChecklist))
	}
}

func TestProfileUnknownFacility(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	_, err := agg.Profile(context.Background(), "no-such-facility")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileFacilityHistoryFailureIsFatal(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)
	citations.facilityErr = errors.New("scan failed")

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	if _, err := agg.Profile(context.Background(), "fac-1"); err == nil {
		t.Fatalf("facility history failure must fail the profile")
	}
}

func TestProfileStateAggregationDegrades(t *testing.T) {
	today := date(2025, time.June, 1)
	records, citations := riskFixture(t, today)
	citations.stateErr = errors.New("aggregation unavailable")

	agg := NewRiskProfileAggregator(nil, records, citations)
	agg.now = func() time.Time { return today }

	profile, err := agg.Profile(context.Background(), "fac-1")
	if err != nil {
		t.Fatalf("state aggregation failure must degrade, not fail: %v", err)
	}
	if len(profile.StateFocus) != 0 || len(profile.NationalTrends) != 0 {
		t.Fatalf("expected empty state sections, got %+v", profile)
	}
	if len(profile.FacilityHistory) == 0 {
		t.Fatalf("facility history must survive the degrade")
	}
}
