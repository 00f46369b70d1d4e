package engine

import (
	"context"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
)

// SurveyStore defines the read-only record-store queries the engine consumes.
// Inspection records are append-only; implementations never expose writes.
type SurveyStore interface {
	// FacilitiesInScope returns facilities in a state, optionally narrowed
	// to a county.
	FacilitiesInScope(ctx context.Context, state, county string) ([]models.FacilityLocation, error)
	// InspectionHistories returns inspection dates per facility for the
	// given survey type since the cutoff, sorted ascending.
	InspectionHistories(ctx context.Context, facilityIDs []string, surveyType models.SurveyType, since time.Time) (map[string][]time.Time, error)
	// InspectionsSince returns all inspections of the given type recorded
	// on or after the cutoff, across all facilities.
	InspectionsSince(ctx context.Context, surveyType models.SurveyType, since time.Time) ([]models.SurveyRecord, error)
	// LatestInspection returns a facility's most recent inspection of the
	// given type; ok is false when the facility has no history.
	LatestInspection(ctx context.Context, facilityID string, surveyType models.SurveyType) (time.Time, bool, error)
	// FacilityLocation returns a facility's geography, or utils.ErrNotFound.
	FacilityLocation(ctx context.Context, facilityID string) (models.FacilityLocation, error)
}

// CitationStore defines the read-only citation aggregations the risk
// profile aggregator consumes.
type CitationStore interface {
	// FacilityCitationCounts returns citation-tag counts for one facility
	// since the cutoff.
	FacilityCitationCounts(ctx context.Context, facilityID string, since time.Time) (map[string]int, error)
	// StateCitationCounts returns citation-tag counts across a state within
	// [start, end).
	StateCitationCounts(ctx context.Context, state string, start, end time.Time) (map[string]int, error)
	// NationalCitationCounts returns citation-tag counts nation-wide within
	// [start, end).
	NationalCitationCounts(ctx context.Context, start, end time.Time) (map[string]int, error)
	// FacilityCount returns the number of facilities in a state, or
	// nationally when state is empty.
	FacilityCount(ctx context.Context, state string) (int, error)
}

// RelationshipStore persists bellwether relationships. Upsert replaces the
// mined aggregates wholesale but preserves any existing signal state, which
// is owned by the lifecycle manager.
type RelationshipStore interface {
	Upsert(ctx context.Context, rel models.BellwetherRelationship) error
	Delete(ctx context.Context, key models.RelationshipKey) error
	// ListForFacility returns relationships where the facility is the
	// dependent party (its bellwethers).
	ListForFacility(ctx context.Context, facilityID string) ([]models.BellwetherRelationship, error)
	// ListForBellwether returns relationships where the facility is the
	// leading indicator.
	ListForBellwether(ctx context.Context, facilityID string) ([]models.BellwetherRelationship, error)
	ListByFacilities(ctx context.Context, facilityIDs []string) ([]models.BellwetherRelationship, error)
	ListByBellwethers(ctx context.Context, bellwetherIDs []string) ([]models.BellwetherRelationship, error)
	ListActive(ctx context.Context) ([]models.BellwetherRelationship, error)
	// UpdateSignal transitions a relationship's signal state; the derived
	// days-since value is recomputed from now.
	UpdateSignal(ctx context.Context, key models.RelationshipKey, signal models.SignalState, now time.Time) error
	// RefreshDaysSince recomputes days_since_signal for every active
	// relationship relative to now, returning the number touched.
	RefreshDaysSince(ctx context.Context, now time.Time) (int, error)
}
