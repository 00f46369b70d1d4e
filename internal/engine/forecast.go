package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/facilityiq/survey-intel/internal/cache"
	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

const (
	// FederalMaxIntervalDays is the statutory 15-month ceiling between
	// required inspections.
	FederalMaxIntervalDays = 456

	// DefaultDaysSinceSurvey substitutes for facilities with no inspection
	// history. Carried over from the original heuristic design unchanged;
	// it is a placeholder, not a derived or validated value.
	DefaultDaysSinceSurvey = 365

	// defaultStateAvgInterval substitutes when a state has no qualifying
	// consecutive-inspection gaps in the trailing window.
	defaultStateAvgInterval = 365

	// Consecutive gaps at or under this are same-week re-visit artifacts,
	// not survey cycles, and are excluded from the state average.
	minCycleGapDays = 30

	stateAvgLookbackYears = 3
	calendarHorizonDays   = 30
	maxHighRiskDays       = 10
)

// forecastWindows are the horizons reported by every forecast.
var forecastWindows = [...]int{7, 14, 30, 90}

// ForecastModel is the stateless read path turning a facility's history,
// its state's inspection cadence, and any active bellwether signals into
// window probabilities, a risk level, and a 30-day high-risk calendar.
type ForecastModel struct {
	surveys       SurveyStore
	relationships RelationshipStore
	factors       FactorTable
	cache         cache.Provider
	cacheTTL      time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewForecastModel constructs a ForecastModel. The cache provider may be nil
// when state-average caching is not wanted.
func NewForecastModel(logger *slog.Logger, surveys SurveyStore, relationships RelationshipStore, factors FactorTable, provider cache.Provider, cacheTTL time.Duration) *ForecastModel {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &ForecastModel{
		surveys:       surveys,
		relationships: relationships,
		factors:       factors,
		cache:         provider,
		cacheTTL:      cacheTTL,
		logger:        logger,
		now:           time.Now,
	}
}

// Forecast produces the inspection-timing forecast for one facility.
// Unknown facilities surface utils.ErrNotFound; missing history or signal
// data degrades to documented defaults recorded in the result's Assumptions.
func (f *ForecastModel) Forecast(ctx context.Context, facilityID string) (models.ForecastResult, error) {
	today := utils.StartOfDay(f.now())

	loc, err := f.surveys.FacilityLocation(ctx, facilityID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return models.ForecastResult{}, utils.NewAppError("forecast", "unknown facility "+facilityID, utils.ErrNotFound)
		}
		return models.ForecastResult{}, fmt.Errorf("load facility %s: %w", facilityID, err)
	}

	result := models.ForecastResult{FacilityID: facilityID}

	daysSince := DefaultDaysSinceSurvey
	last, ok, err := f.surveys.LatestInspection(ctx, facilityID, models.SurveyTypeHealthStandard)
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("load latest inspection for %s: %w", facilityID, err)
	}
	if ok {
		daysSince = utils.DaysBetween(last, today)
	} else {
		result.Assumptions = append(result.Assumptions,
			"no inspection history; days since survey defaulted to 365 (unvalidated placeholder)")
	}

	stateAvg, assumed := f.stateAverageInterval(ctx, loc.State, today)
	if assumed {
		result.Assumptions = append(result.Assumptions,
			"no qualifying state interval data; state average defaulted to 365 days")
	}

	activeSignals, degraded := f.countActiveSignals(ctx, facilityID)
	if degraded {
		result.Assumptions = append(result.Assumptions,
			"bellwether signals unavailable; treated as zero")
	}
	signalActive := activeSignals > 0

	for _, window := range forecastWindows {
		result.Windows = append(result.Windows, models.WindowProbability{
			WindowDays:  window,
			Probability: f.windowProbability(window, daysSince, stateAvg, signalActive),
		})
	}

	result.HighRiskDays = f.highRiskCalendar(today, daysSince, stateAvg, signalActive)
	result.RiskLevel, result.RiskReason = classifyRisk(daysSince, stateAvg, signalActive)
	result.DaysSinceSurvey = daysSince
	result.StateAvgInterval = stateAvg
	result.ActiveSignals = activeSignals

	return result, nil
}

// windowProbability models the chance of an inspection inside the window.
// It never claims certainty: the ceiling is the configured window cap.
func (f *ForecastModel) windowProbability(windowDays, daysSince int, stateAvg float64, signalActive bool) float64 {
	remaining := stateAvg - float64(daysSince)
	if remaining < 1 {
		remaining = 1
	}
	p := float64(windowDays) / remaining
	if p > 1 {
		p = 1
	}
	if signalActive {
		p *= f.factors.SignalMultiplier
	}
	if float64(daysSince+windowDays) > FederalMaxIntervalDays {
		p = f.factors.WindowCap
	}
	if p > f.factors.WindowCap {
		p = f.factors.WindowCap
	}
	return p
}

// highRiskCalendar blends the heuristic factors into per-day probabilities
// over the next 30 days, keeps dates above the retention floor, and returns
// the top entries sorted by probability. The Dec 22 - Jan 2 federal holiday
// shutdown is excluded outright.
func (f *ForecastModel) highRiskCalendar(today time.Time, daysSince int, stateAvg float64, signalActive bool) []models.HighRiskDay {
	days := make([]models.HighRiskDay, 0, calendarHorizonDays)

	for offset := 1; offset <= calendarHorizonDays; offset++ {
		date := today.AddDate(0, 0, offset)
		if inHolidayShutdown(date) {
			continue
		}

		p := f.factors.BaseDailyRate
		var labels []string

		p *= f.factors.WeekdayFactor(date.Weekday())
		if date.Weekday() == time.Wednesday {
			labels = append(labels, "Wednesday peak")
		}

		if weekOfMonth(date) >= 4 {
			p *= f.factors.WeekFourPush
			labels = append(labels, "Week 4 push")
		}

		switch seasonal := f.factors.SeasonalFactor(date.Month()); {
		case seasonal > 1:
			p *= seasonal
			labels = append(labels, "Fiscal year-end push")
		case seasonal < 1:
			p *= seasonal
			labels = append(labels, "Holiday slowdown")
		}

		if signalActive {
			p *= f.factors.SignalMultiplier
			labels = append(labels, "Bellwether signal")
		}

		if float64(daysSince+offset) > stateAvg {
			p *= f.factors.OverdueScale
			labels = append(labels, "Past state average interval")
		}

		if p > f.factors.DailyCap {
			p = f.factors.DailyCap
		}
		if p <= f.factors.MinDailyKeep {
			continue
		}

		days = append(days, models.HighRiskDay{Date: date, Probability: p, Factors: labels})
	}

	sort.SliceStable(days, func(i, j int) bool {
		if days[i].Probability != days[j].Probability {
			return days[i].Probability > days[j].Probability
		}
		return days[i].Date.Before(days[j].Date)
	})
	if len(days) > maxHighRiskDays {
		days = days[:maxHighRiskDays]
	}
	return days
}

// classifyRisk is an ordered decision list, deliberately interpretable;
// the first matching rule wins.
func classifyRisk(daysSince int, stateAvg float64, signalActive bool) (models.RiskLevel, string) {
	d := float64(daysSince)
	federalRatio := d / FederalMaxIntervalDays

	switch {
	case signalActive && d > 0.7*stateAvg:
		return models.RiskLevelHigh, fmt.Sprintf(
			"Active bellwether signal with %d days since last survey, past 70%% of the state average of %.0f days", daysSince, stateAvg)
	case d > 0.9*FederalMaxIntervalDays:
		return models.RiskLevelHigh, fmt.Sprintf(
			"%d days since last survey approaches the federal maximum of %d days", daysSince, FederalMaxIntervalDays)
	case d > 1.1*stateAvg:
		return models.RiskLevelElevated, fmt.Sprintf(
			"%d days since last survey exceeds the state average of %.0f days by more than 10%%", daysSince, stateAvg)
	case federalRatio > 0.8:
		return models.RiskLevelElevated, fmt.Sprintf(
			"%d days since last survey is over 80%% of the federal maximum interval", daysSince)
	case d > 0.8*stateAvg:
		return models.RiskLevelModerate, fmt.Sprintf(
			"%d days since last survey is past 80%% of the state average of %.0f days", daysSince, stateAvg)
	case federalRatio > 0.6:
		return models.RiskLevelModerate, fmt.Sprintf(
			"%d days since last survey is over 60%% of the federal maximum interval", daysSince)
	default:
		return models.RiskLevelLow, fmt.Sprintf(
			"%d days since last survey is within the typical cadence for the state (average %.0f days)", daysSince, stateAvg)
	}
}

// stateAverageInterval computes the state's mean inspection interval from
// consecutive gaps over 30 days in the trailing three years. Results are
// cached per state because the scan covers every facility in the state.
func (f *ForecastModel) stateAverageInterval(ctx context.Context, state string, today time.Time) (float64, bool) {
	key := "survey-intel:state-avg:" + state
	if data, err := f.cache.Get(ctx, key); err == nil {
		if avg, parseErr := strconv.ParseFloat(string(data), 64); parseErr == nil && avg > 0 {
			return avg, false
		}
	}

	facilities, err := f.surveys.FacilitiesInScope(ctx, state, "")
	if err != nil {
		f.logger.Warn("state facility scan failed", slog.String("state", state), slog.Any("error", err))
		return defaultStateAvgInterval, true
	}
	ids := make([]string, 0, len(facilities))
	for _, fac := range facilities {
		ids = append(ids, fac.FacilityID)
	}

	since := today.AddDate(-stateAvgLookbackYears, 0, 0)
	histories, err := f.surveys.InspectionHistories(ctx, ids, models.SurveyTypeHealthStandard, since)
	if err != nil {
		f.logger.Warn("state history scan failed", slog.String("state", state), slog.Any("error", err))
		return defaultStateAvgInterval, true
	}

	total, count := 0, 0
	for _, dates := range histories {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		for i := 1; i < len(dates); i++ {
			gap := utils.DaysBetween(dates[i-1], dates[i])
			if gap > minCycleGapDays {
				total += gap
				count++
			}
		}
	}
	if count == 0 {
		return defaultStateAvgInterval, true
	}

	avg := float64(total) / float64(count)
	if err := f.cache.Set(ctx, key, []byte(strconv.FormatFloat(avg, 'f', -1, 64)), f.cacheTTL); err != nil {
		f.logger.Warn("state average cache write failed", slog.String("state", state), slog.Any("error", err))
	}
	return avg, false
}

// countActiveSignals returns how many live signals point at the facility,
// degrading to zero when relationship data cannot be read.
func (f *ForecastModel) countActiveSignals(ctx context.Context, facilityID string) (int, bool) {
	rels, err := f.relationships.ListForFacility(ctx, facilityID)
	if err != nil {
		f.logger.Warn("relationship lookup failed", slog.String("facility", facilityID), slog.Any("error", err))
		return 0, true
	}
	count := 0
	for _, rel := range rels {
		if rel.Signal.Active() {
			count++
		}
	}
	return count, false
}

// inHolidayShutdown reports whether a date falls in the Dec 22 - Jan 2
// window, inclusive, during which surveys are not initiated.
func inHolidayShutdown(date time.Time) bool {
	switch date.Month() {
	case time.December:
		return date.Day() >= 22
	case time.January:
		return date.Day() <= 2
	default:
		return false
	}
}

func weekOfMonth(date time.Time) int {
	return ((date.Day() - 1) / 7) + 1
}
