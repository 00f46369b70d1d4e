package models

import "time"

// RiskLevel is the categorical inspection-risk band for a facility.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelModerate RiskLevel = "moderate"
	RiskLevelElevated RiskLevel = "elevated"
	RiskLevelHigh     RiskLevel = "high"
)

// WindowProbability is the modelled chance of an inspection within the
// next WindowDays days.
type WindowProbability struct {
	WindowDays  int     `json:"window_days"`
	Probability float64 `json:"probability"`
}

// HighRiskDay is one calendar date flagged by the daily probability blend,
// annotated with the factor labels that contributed to it.
type HighRiskDay struct {
	Date        time.Time `json:"date"`
	Probability float64   `json:"probability"`
	Factors     []string  `json:"factors"`
}

// ForecastResult is the ephemeral output of a forecast query. Assumptions
// lists every degraded default applied while computing it, so callers can
// tell "no signal" apart from "computation failed".
type ForecastResult struct {
	FacilityID       string              `json:"facility_id"`
	DaysSinceSurvey  int                 `json:"days_since_survey"`
	StateAvgInterval float64             `json:"state_avg_interval"`
	ActiveSignals    int                 `json:"active_signals"`
	Windows          []WindowProbability `json:"windows"`
	HighRiskDays     []HighRiskDay       `json:"high_risk_days"`
	RiskLevel        RiskLevel           `json:"risk_level"`
	RiskReason       string              `json:"risk_reason"`
	Assumptions      []string            `json:"assumptions,omitempty"`
}
