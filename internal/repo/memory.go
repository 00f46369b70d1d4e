package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

// MemoryRecordStore implements the survey and citation read interfaces over
// in-memory records. It backs tests and single-node development runs; the
// Postgres store replaces it in deployments.
type MemoryRecordStore struct {
	mu         sync.RWMutex
	surveys    []models.SurveyRecord
	facilities map[string]models.FacilityLocation
}

// NewMemoryRecordStore creates an empty record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{facilities: make(map[string]models.FacilityLocation)}
}

// AddFacility registers a facility location.
func (s *MemoryRecordStore) AddFacility(loc models.FacilityLocation) {
	s.mu.Lock()
	s.facilities[loc.FacilityID] = loc
	s.mu.Unlock()
}

// AddSurvey appends an inspection record.
func (s *MemoryRecordStore) AddSurvey(rec models.SurveyRecord) {
	s.mu.Lock()
	s.surveys = append(s.surveys, rec)
	s.mu.Unlock()
}

// FacilitiesInScope returns facilities matching the state and, when given,
// the county. Matching is case-insensitive.
func (s *MemoryRecordStore) FacilitiesInScope(_ context.Context, state, county string) ([]models.FacilityLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FacilityLocation, 0)
	for _, loc := range s.facilities {
		if !strings.EqualFold(loc.State, state) {
			continue
		}
		if county != "" && !strings.EqualFold(loc.County, county) {
			continue
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FacilityID < out[j].FacilityID })
	return out, nil
}

// InspectionHistories returns sorted inspection dates per facility.
func (s *MemoryRecordStore) InspectionHistories(_ context.Context, facilityIDs []string, surveyType models.SurveyType, since time.Time) (map[string][]time.Time, error) {
	wanted := make(map[string]struct{}, len(facilityIDs))
	for _, id := range facilityIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	histories := make(map[string][]time.Time, len(facilityIDs))
	for _, rec := range s.surveys {
		if rec.Type != surveyType || rec.Date.Before(since) {
			continue
		}
		if _, ok := wanted[rec.FacilityID]; !ok {
			continue
		}
		histories[rec.FacilityID] = append(histories[rec.FacilityID], rec.Date)
	}
	for _, dates := range histories {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}
	return histories, nil
}

// InspectionsSince returns inspections of the given type on or after the cutoff.
func (s *MemoryRecordStore) InspectionsSince(_ context.Context, surveyType models.SurveyType, since time.Time) ([]models.SurveyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SurveyRecord, 0)
	for _, rec := range s.surveys {
		if rec.Type == surveyType && !rec.Date.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LatestInspection returns the facility's most recent inspection of the type.
func (s *MemoryRecordStore) LatestInspection(_ context.Context, facilityID string, surveyType models.SurveyType) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, rec := range s.surveys {
		if rec.FacilityID != facilityID || rec.Type != surveyType {
			continue
		}
		if !found || rec.Date.After(latest) {
			latest = rec.Date
			found = true
		}
	}
	return latest, found, nil
}

// FacilityLocation returns the facility's geography or utils.ErrNotFound.
func (s *MemoryRecordStore) FacilityLocation(_ context.Context, facilityID string) (models.FacilityLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.facilities[facilityID]
	if !ok {
		return models.FacilityLocation{}, fmt.Errorf("facility %s: %w", facilityID, utils.ErrNotFound)
	}
	return loc, nil
}

// FacilityCitationCounts returns citation-tag counts for one facility.
func (s *MemoryRecordStore) FacilityCitationCounts(_ context.Context, facilityID string, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range s.surveys {
		if rec.FacilityID != facilityID || rec.Date.Before(since) {
			continue
		}
		for _, tag := range rec.CitationTags {
			counts[tag]++
		}
	}
	return counts, nil
}

// StateCitationCounts returns state-wide citation-tag counts within [start, end).
func (s *MemoryRecordStore) StateCitationCounts(_ context.Context, state string, start, end time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range s.surveys {
		loc, ok := s.facilities[rec.FacilityID]
		if !ok || !strings.EqualFold(loc.State, state) {
			continue
		}
		if rec.Date.Before(start) || !rec.Date.Before(end) {
			continue
		}
		for _, tag := range rec.CitationTags {
			counts[tag]++
		}
	}
	return counts, nil
}

// NationalCitationCounts returns nation-wide citation-tag counts within [start, end).
func (s *MemoryRecordStore) NationalCitationCounts(_ context.Context, start, end time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range s.surveys {
		if rec.Date.Before(start) || !rec.Date.Before(end) {
			continue
		}
		for _, tag := range rec.CitationTags {
			counts[tag]++
		}
	}
	return counts, nil
}

// FacilityCount returns the facility count for a state, or nationally when
// state is empty.
func (s *MemoryRecordStore) FacilityCount(_ context.Context, state string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state == "" {
		return len(s.facilities), nil
	}
	count := 0
	for _, loc := range s.facilities {
		if strings.EqualFold(loc.State, state) {
			count++
		}
	}
	return count, nil
}

// MemoryRelationshipStore holds bellwether relationships in memory with the
// same upsert semantics as the Postgres store: mined aggregates replace
// wholesale, lifecycle state survives the replace.
type MemoryRelationshipStore struct {
	mu   sync.RWMutex
	rels map[models.RelationshipKey]models.BellwetherRelationship
}

// NewMemoryRelationshipStore creates an empty relationship store.
func NewMemoryRelationshipStore() *MemoryRelationshipStore {
	return &MemoryRelationshipStore{rels: make(map[models.RelationshipKey]models.BellwetherRelationship)}
}

// Upsert inserts or replaces a relationship's mined aggregates, preserving
// any existing signal state.
func (s *MemoryRelationshipStore) Upsert(_ context.Context, rel models.BellwetherRelationship) error {
	if rel.FacilityID == rel.BellwetherFacilityID {
		return fmt.Errorf("relationship cannot be self-referential: %s", rel.FacilityID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.rels[rel.Key()]; ok {
		rel.Signal = cur.Signal
		rel.DaysSinceSignal = cur.DaysSinceSignal
	}
	s.rels[rel.Key()] = rel
	return nil
}

// Delete removes a relationship; deleting an absent key is not an error.
func (s *MemoryRelationshipStore) Delete(_ context.Context, key models.RelationshipKey) error {
	s.mu.Lock()
	delete(s.rels, key)
	s.mu.Unlock()
	return nil
}

// ListForFacility returns relationships where the facility is dependent.
func (s *MemoryRelationshipStore) ListForFacility(_ context.Context, facilityID string) ([]models.BellwetherRelationship, error) {
	return s.list(func(rel models.BellwetherRelationship) bool {
		return rel.FacilityID == facilityID
	}), nil
}

// ListForBellwether returns relationships where the facility leads.
func (s *MemoryRelationshipStore) ListForBellwether(_ context.Context, facilityID string) ([]models.BellwetherRelationship, error) {
	return s.list(func(rel models.BellwetherRelationship) bool {
		return rel.BellwetherFacilityID == facilityID
	}), nil
}

// ListByFacilities returns relationships whose dependent facility is in the set.
func (s *MemoryRelationshipStore) ListByFacilities(_ context.Context, facilityIDs []string) ([]models.BellwetherRelationship, error) {
	wanted := idSet(facilityIDs)
	return s.list(func(rel models.BellwetherRelationship) bool {
		_, ok := wanted[rel.FacilityID]
		return ok
	}), nil
}

// ListByBellwethers returns relationships whose bellwether is in the set.
func (s *MemoryRelationshipStore) ListByBellwethers(_ context.Context, bellwetherIDs []string) ([]models.BellwetherRelationship, error) {
	wanted := idSet(bellwetherIDs)
	return s.list(func(rel models.BellwetherRelationship) bool {
		_, ok := wanted[rel.BellwetherFacilityID]
		return ok
	}), nil
}

// ListActive returns relationships with a live signal.
func (s *MemoryRelationshipStore) ListActive(_ context.Context) ([]models.BellwetherRelationship, error) {
	return s.list(func(rel models.BellwetherRelationship) bool {
		return rel.Signal.Active()
	}), nil
}

// UpdateSignal transitions a relationship's signal state.
func (s *MemoryRelationshipStore) UpdateSignal(_ context.Context, key models.RelationshipKey, signal models.SignalState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.rels[key]
	if !ok {
		return fmt.Errorf("relationship %s/%s: %w", key.FacilityID, key.BellwetherFacilityID, utils.ErrNotFound)
	}
	rel.Signal = signal
	rel.DaysSinceSignal = signal.DaysSince(now)
	s.rels[key] = rel
	return nil
}

// RefreshDaysSince recomputes the derived signal age for active relationships.
func (s *MemoryRelationshipStore) RefreshDaysSince(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := 0
	for key, rel := range s.rels {
		if !rel.Signal.Active() {
			continue
		}
		rel.DaysSinceSignal = rel.Signal.DaysSince(now)
		s.rels[key] = rel
		touched++
	}
	return touched, nil
}

func (s *MemoryRelationshipStore) list(match func(models.BellwetherRelationship) bool) []models.BellwetherRelationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BellwetherRelationship, 0)
	for _, rel := range s.rels {
		if match(rel) {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FacilityID != out[j].FacilityID {
			return out[i].FacilityID < out[j].FacilityID
		}
		return out[i].BellwetherFacilityID < out[j].BellwetherFacilityID
	})
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
