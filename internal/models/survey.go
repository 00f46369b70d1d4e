package models

import "time"

// SurveyType enumerates regulatory inspection categories.
type SurveyType string

const (
	SurveyTypeHealthStandard SurveyType = "health_standard"
	SurveyTypeFireSafety     SurveyType = "fire_safety"
	SurveyTypeComplaint      SurveyType = "complaint"
)

// SurveyRecord is one regulatory inspection visit. Records are append-only
// and owned by the record store; this engine never mutates them.
type SurveyRecord struct {
	FacilityID   string     `json:"facility_id"`
	Date         time.Time  `json:"date"`
	Type         SurveyType `json:"type"`
	CitationTags []string   `json:"citation_tags,omitempty"`
}

// FacilityLocation holds the static geography for a facility, keyed by CCN.
type FacilityLocation struct {
	FacilityID string  `json:"facility_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	State      string  `json:"state"`
	County     string  `json:"county"`
}
