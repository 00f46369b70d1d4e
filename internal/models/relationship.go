package models

import (
	"encoding/json"
	"time"
)

// SignalState is the tagged live/decayed state of a bellwether relationship:
// either Active with the bellwether's most recent inspection date, or
// Inactive with no date. Keeping the date inside the variant enforces the
// "signal date present iff active" invariant structurally.
type SignalState struct {
	active bool
	date   time.Time
}

// ActiveSignal returns an Active state carrying the triggering inspection date.
func ActiveSignal(date time.Time) SignalState {
	return SignalState{active: true, date: date}
}

// InactiveSignal returns the Inactive state.
func InactiveSignal() SignalState {
	return SignalState{}
}

// Active reports whether the relationship is currently a live signal.
func (s SignalState) Active() bool { return s.active }

// Date returns the signal date and whether one is present.
func (s SignalState) Date() (time.Time, bool) {
	if !s.active {
		return time.Time{}, false
	}
	return s.date, true
}

// DaysSince returns whole days elapsed from the signal date to now, or zero
// when the state is Inactive.
func (s SignalState) DaysSince(now time.Time) int {
	if !s.active {
		return 0
	}
	days := int(now.Sub(s.date).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days
}

type signalStateWire struct {
	Active     bool       `json:"active"`
	SignalDate *time.Time `json:"signal_date,omitempty"`
}

// MarshalJSON emits the signal date only when the signal is active.
func (s SignalState) MarshalJSON() ([]byte, error) {
	wire := signalStateWire{Active: s.active}
	if s.active {
		d := s.date
		wire.SignalDate = &d
	}
	return json.Marshal(wire)
}

// UnmarshalJSON rebuilds the tagged state, ignoring a date on an inactive
// signal.
func (s *SignalState) UnmarshalJSON(data []byte) error {
	var wire signalStateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Active && wire.SignalDate != nil {
		*s = ActiveSignal(*wire.SignalDate)
		return nil
	}
	*s = InactiveSignal()
	return nil
}

// BellwetherRelationship records that inspections of BellwetherFacilityID
// historically precede inspections of FacilityID within a short window.
// Aggregates are replaced wholesale by each mining run; Signal and
// DaysSinceSignal are owned by the signal lifecycle manager.
type BellwetherRelationship struct {
	FacilityID           string `json:"facility_id"`
	BellwetherFacilityID string `json:"bellwether_facility_id"`

	TimesPreceded     int     `json:"times_preceded"`
	TotalSurveyCycles int     `json:"total_survey_cycles"`
	AvgDaysGap        float64 `json:"avg_days_gap"`
	StddevDaysGap     float64 `json:"stddev_days_gap"`
	MinDaysGap        int     `json:"min_days_gap"`
	MaxDaysGap        int     `json:"max_days_gap"`
	PatternYears      int     `json:"pattern_years"`
	ConfidenceScore   float64 `json:"confidence_score"`

	Signal          SignalState `json:"signal"`
	DaysSinceSignal int         `json:"days_since_signal"`
}

// Key identifies a relationship by its (facility, bellwether) pair.
func (r BellwetherRelationship) Key() RelationshipKey {
	return RelationshipKey{FacilityID: r.FacilityID, BellwetherFacilityID: r.BellwetherFacilityID}
}

// RelationshipKey is the composite identity of a bellwether relationship.
type RelationshipKey struct {
	FacilityID           string
	BellwetherFacilityID string
}
