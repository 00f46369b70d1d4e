package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

const (
	// checklistCap bounds the combined prep checklist.
	checklistCap = 12

	// State trend compares the trailing six months against the six before.
	trendWindowMonths = 6

	// trendingThresholdPct marks a tag as trending upward state-wide.
	trendingThresholdPct = 10.0

	// rateGapThresholdPoints flags states whose per-100-facility citation
	// rate runs well above the national rate.
	rateGapThresholdPoints = 5.0

	historyLookbackYears = 3
)

// RiskProfileAggregator fuses a facility's citation history with state and
// national trends into a prioritized compliance-prep checklist. It is a
// stateless read path over the record store and mutates nothing.
type RiskProfileAggregator struct {
	surveys   SurveyStore
	citations CitationStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewRiskProfileAggregator constructs a RiskProfileAggregator.
func NewRiskProfileAggregator(logger *slog.Logger, surveys SurveyStore, citations CitationStore) *RiskProfileAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskProfileAggregator{
		surveys:   surveys,
		citations: citations,
		logger:    logger,
		now:       time.Now,
	}
}

// Profile builds the risk profile for one facility. Tags enter the checklist
// from four tiered sources, highest priority first; a tag claimed by a
// higher tier is never re-added by a lower one, and the combined list stops
// at the cap.
func (a *RiskProfileAggregator) Profile(ctx context.Context, facilityID string) (models.RiskProfile, error) {
	today := utils.StartOfDay(a.now())

	loc, err := a.surveys.FacilityLocation(ctx, facilityID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return models.RiskProfile{}, utils.NewAppError("riskprofile", "unknown facility "+facilityID, utils.ErrNotFound)
		}
		return models.RiskProfile{}, fmt.Errorf("load facility %s: %w", facilityID, err)
	}

	facilityCounts, err := a.citations.FacilityCitationCounts(ctx, facilityID, today.AddDate(-historyLookbackYears, 0, 0))
	if err != nil {
		return models.RiskProfile{}, fmt.Errorf("load facility citations for %s: %w", facilityID, err)
	}

	trends := a.stateTrends(ctx, loc.State, today)
	gaps := a.rateGaps(ctx, loc.State, today)

	trendingUp := make(map[string]models.TagTrend, len(trends))
	for _, trend := range trends {
		if trend.ChangePct > trendingThresholdPct && trend.RecentCount > 0 {
			trendingUp[trend.Tag] = trend
		}
	}

	profile := models.RiskProfile{
		FacilityID:      facilityID,
		State:           loc.State,
		FacilityHistory: sortedTagCounts(facilityCounts),
		StateFocus:      filterTrending(trends),
		NationalTrends:  gaps,
	}

	added := make(map[string]struct{})
	add := func(entry models.RiskChecklistEntry) {
		if len(profile.PrepChecklist) >= checklistCap {
			return
		}
		if _, ok := added[entry.Tag]; ok {
			return
		}
		added[entry.Tag] = struct{}{}
		profile.PrepChecklist = append(profile.PrepChecklist, entry)
	}

	// Tier 1: cited here before and trending upward state-wide.
	for _, trend := range sortedTrends(trendingUp) {
		count, cited := facilityCounts[trend.Tag]
		if !cited || count == 0 {
			continue
		}
		add(models.RiskChecklistEntry{
			Tag:               trend.Tag,
			Tier:              models.TierFacilityTrending,
			Reason:            fmt.Sprintf("Cited here %d time(s) and up %.0f%% state-wide over six months", count, trend.ChangePct),
			FacilityCitations: count,
			StateChangePct:    trend.ChangePct,
		})
	}

	// Tier 2: repeat citations at this facility, trend irrelevant.
	for _, tc := range sortedTagCounts(facilityCounts) {
		if tc.Count < 2 {
			continue
		}
		add(models.RiskChecklistEntry{
			Tag:               tc.Tag,
			Tier:              models.TierRecidivism,
			Reason:            fmt.Sprintf("Cited here %d times; repeat deficiencies draw surveyor focus", tc.Count),
			FacilityCitations: tc.Count,
		})
	}

	// Tier 3: trending upward state-wide, not yet cited here.
	for _, trend := range sortedTrends(trendingUp) {
		if _, cited := facilityCounts[trend.Tag]; cited {
			continue
		}
		add(models.RiskChecklistEntry{
			Tag:            trend.Tag,
			Tier:           models.TierStateTrending,
			Reason:         fmt.Sprintf("Up %.0f%% state-wide over six months; not yet cited at this facility", trend.ChangePct),
			StateChangePct: trend.ChangePct,
		})
	}

	// Tier 4: state rate well above the national rate.
	for _, gap := range gaps {
		add(models.RiskChecklistEntry{
			Tag:                gap.Tag,
			Tier:               models.TierStateVsNational,
			Reason:             fmt.Sprintf("State rate %.1f per 100 facilities vs %.1f nationally", gap.StateRatePer100, gap.NationalRatePer100),
			StateRatePer100:    gap.StateRatePer100,
			NationalRatePer100: gap.NationalRatePer100,
		})
	}

	return profile, nil
}

// stateTrends compares state-wide citation volume for the trailing six
// months against the six before. Aggregation failures degrade to an empty
// trend set rather than failing the profile.
func (a *RiskProfileAggregator) stateTrends(ctx context.Context, state string, today time.Time) []models.TagTrend {
	recentStart := today.AddDate(0, -trendWindowMonths, 0)
	priorStart := today.AddDate(0, -2*trendWindowMonths, 0)

	recent, err := a.citations.StateCitationCounts(ctx, state, recentStart, today)
	if err != nil {
		a.logger.Warn("state citation scan failed", slog.String("state", state), slog.Any("error", err))
		return nil
	}
	prior, err := a.citations.StateCitationCounts(ctx, state, priorStart, recentStart)
	if err != nil {
		a.logger.Warn("prior state citation scan failed", slog.String("state", state), slog.Any("error", err))
		return nil
	}

	tags := make(map[string]struct{}, len(recent)+len(prior))
	for tag := range recent {
		tags[tag] = struct{}{}
	}
	for tag := range prior {
		tags[tag] = struct{}{}
	}

	trends := make([]models.TagTrend, 0, len(tags))
	for tag := range tags {
		r, p := recent[tag], prior[tag]
		change := 0.0
		switch {
		case p > 0:
			change = (float64(r) - float64(p)) / float64(p) * 100
		case r > 0:
			change = 100
		}
		trends = append(trends, models.TagTrend{Tag: tag, RecentCount: r, PriorCount: p, ChangePct: change})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].ChangePct != trends[j].ChangePct {
			return trends[i].ChangePct > trends[j].ChangePct
		}
		return trends[i].Tag < trends[j].Tag
	})
	return trends
}

// rateGaps finds tags whose state per-100-facility citation rate exceeds
// the national rate by more than the gap threshold, over the trailing year.
func (a *RiskProfileAggregator) rateGaps(ctx context.Context, state string, today time.Time) []models.TagRateGap {
	yearStart := today.AddDate(-1, 0, 0)

	stateCounts, err := a.citations.StateCitationCounts(ctx, state, yearStart, today)
	if err != nil {
		a.logger.Warn("state rate scan failed", slog.String("state", state), slog.Any("error", err))
		return nil
	}
	nationalCounts, err := a.citations.NationalCitationCounts(ctx, yearStart, today)
	if err != nil {
		a.logger.Warn("national rate scan failed", slog.Any("error", err))
		return nil
	}
	stateFacilities, err := a.citations.FacilityCount(ctx, state)
	if err != nil || stateFacilities == 0 {
		a.logger.Warn("state facility count unavailable", slog.String("state", state), slog.Any("error", err))
		return nil
	}
	nationalFacilities, err := a.citations.FacilityCount(ctx, "")
	if err != nil || nationalFacilities == 0 {
		a.logger.Warn("national facility count unavailable", slog.Any("error", err))
		return nil
	}

	gaps := make([]models.TagRateGap, 0)
	for tag, count := range stateCounts {
		stateRate := float64(count) / float64(stateFacilities) * 100
		nationalRate := float64(nationalCounts[tag]) / float64(nationalFacilities) * 100
		gap := stateRate - nationalRate
		if gap <= rateGapThresholdPoints {
			continue
		}
		gaps = append(gaps, models.TagRateGap{
			Tag:                tag,
			StateRatePer100:    stateRate,
			NationalRatePer100: nationalRate,
			GapPoints:          gap,
		})
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].GapPoints != gaps[j].GapPoints {
			return gaps[i].GapPoints > gaps[j].GapPoints
		}
		return gaps[i].Tag < gaps[j].Tag
	})
	return gaps
}

func sortedTagCounts(counts map[string]int) []models.TagCount {
	out := make([]models.TagCount, 0, len(counts))
	for tag, count := range counts {
		out = append(out, models.TagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

func sortedTrends(trends map[string]models.TagTrend) []models.TagTrend {
	out := make([]models.TagTrend, 0, len(trends))
	for _, trend := range trends {
		out = append(out, trend)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangePct != out[j].ChangePct {
			return out[i].ChangePct > out[j].ChangePct
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

func filterTrending(trends []models.TagTrend) []models.TagTrend {
	out := make([]models.TagTrend, 0, len(trends))
	for _, trend := range trends {
		if trend.ChangePct > trendingThresholdPct && trend.RecentCount > 0 {
			out = append(out, trend)
		}
	}
	return out
}
