package models

// ChecklistTier orders prep-checklist sources; lower is higher priority.
type ChecklistTier int

const (
	// TierFacilityTrending: cited here before and trending up state-wide.
	TierFacilityTrending ChecklistTier = 1
	// TierRecidivism: cited here two or more times, trend irrelevant.
	TierRecidivism ChecklistTier = 2
	// TierStateTrending: trending up state-wide, not yet cited here.
	TierStateTrending ChecklistTier = 3
	// TierStateVsNational: state per-facility rate well above national.
	TierStateVsNational ChecklistTier = 4
)

// RiskChecklistEntry is one prioritised citation tag a facility should
// focus compliance-prep effort on. Entries are deduplicated by tag.
type RiskChecklistEntry struct {
	Tag                string        `json:"tag"`
	Tier               ChecklistTier `json:"tier"`
	Reason             string        `json:"reason"`
	FacilityCitations  int           `json:"facility_citations,omitempty"`
	StateChangePct     float64       `json:"state_change_pct,omitempty"`
	StateRatePer100    float64       `json:"state_rate_per_100,omitempty"`
	NationalRatePer100 float64       `json:"national_rate_per_100,omitempty"`
}

// TagCount pairs a citation tag with an occurrence count.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagTrend compares recent and prior citation volume for one tag.
type TagTrend struct {
	Tag         string  `json:"tag"`
	RecentCount int     `json:"recent_count"`
	PriorCount  int     `json:"prior_count"`
	ChangePct   float64 `json:"change_pct"`
}

// TagRateGap compares state and national per-facility citation rates,
// both expressed as citations per 100 facilities.
type TagRateGap struct {
	Tag                string  `json:"tag"`
	StateRatePer100    float64 `json:"state_rate_per_100"`
	NationalRatePer100 float64 `json:"national_rate_per_100"`
	GapPoints          float64 `json:"gap_points"`
}

// RiskProfile is the ephemeral output of a risk-profile query.
type RiskProfile struct {
	FacilityID      string               `json:"facility_id"`
	State           string               `json:"state"`
	FacilityHistory []TagCount           `json:"facility_history"`
	StateFocus      []TagTrend           `json:"state_focus"`
	NationalTrends  []TagRateGap         `json:"national_trends"`
	PrepChecklist   []RiskChecklistEntry `json:"prep_checklist"`
}
