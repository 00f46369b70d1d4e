package models

import "time"

// MineScope bounds a mining run geographically. County is optional; the
// pairwise scan is quadratic in facility count, so runs are always scoped.
type MineScope struct {
	State  string
	County string
}

// MineConfig tunes the relationship miner.
type MineConfig struct {
	MinOccurrences int
	MinConfidence  float64
	LookbackYears  int
}

// MineReport summarises one mining run.
type MineReport struct {
	RunID                string `json:"run_id"`
	RelationshipsCreated int    `json:"relationships_created"`
	HighConfidenceCount  int    `json:"high_confidence_count"`
	FacilitiesAnalyzed   int    `json:"facilities_analyzed"`
	InspectionsAnalyzed  int    `json:"inspections_analyzed"`
}

// SignalUpdateReport summarises one signal lifecycle run.
type SignalUpdateReport struct {
	RunID               string `json:"run_id"`
	SignalsActivated    int    `json:"signals_activated"`
	SignalsCleared      int    `json:"signals_cleared"`
	BellwethersSurveyed int    `json:"bellwethers_surveyed"`
}

// BellwetherSet lists both directions of a facility's relationships.
type BellwetherSet struct {
	FacilityID       string                   `json:"facility_id"`
	BellwethersForMe []BellwetherRelationship `json:"bellwethers_for_me"`
	BellwetherFor    []BellwetherRelationship `json:"bellwether_for"`
}

// ActiveSignalEntry is one currently live signal pointing at a facility.
type ActiveSignalEntry struct {
	BellwetherFacilityID string    `json:"bellwether_facility_id"`
	SignalDate           time.Time `json:"signal_date"`
	DaysSinceSignal      int       `json:"days_since_signal"`
	AvgDaysGap           float64   `json:"avg_days_gap"`
	ConfidenceScore      float64   `json:"confidence_score"`
	ExpectedBy           time.Time `json:"expected_by"`
}

// Alert statuses for an active-signal report.
const (
	AlertStatusAlert = "alert"
	AlertStatusWatch = "watch"
	AlertStatusClear = "clear"
)

// ActiveSignalReport is the ephemeral output of an active-signal query.
type ActiveSignalReport struct {
	FacilityID        string              `json:"facility_id"`
	ActiveSignals     []ActiveSignalEntry `json:"active_signals"`
	AlertStatus       string              `json:"alert_status"`
	RecommendedAction string              `json:"recommended_action"`
}
