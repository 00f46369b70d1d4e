package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

const (
	// DefaultSignalLookbackDays is the trailing window scanned for newly
	// ingested inspections when none is given.
	DefaultSignalLookbackDays = 14

	// signalFloorDays is the minimum age before an active signal decays,
	// even for tight historical gaps.
	signalFloorDays = 30
)

// LifecycleManager maintains which relationships are currently live signals.
// It is triggered after new inspection data lands and is idempotent: re-runs
// with the same inspections neither double-activate nor move signal dates.
type LifecycleManager struct {
	surveys       SurveyStore
	relationships RelationshipStore
	logger        *slog.Logger
	now           func() time.Time
}

// NewLifecycleManager constructs a LifecycleManager.
func NewLifecycleManager(logger *slog.Logger, surveys SurveyStore, relationships RelationshipStore) *LifecycleManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleManager{
		surveys:       surveys,
		relationships: relationships,
		logger:        logger,
		now:           time.Now,
	}
}

// UpdateSignals runs the three lifecycle passes in their required order:
// decay stale signals, activate signals for bellwethers inspected within the
// lookback window, then recompute the derived signal ages. Decay runs first
// so a bellwether surveyed in this batch is never immediately decayed by a
// staleness check aimed at the prior state.
func (l *LifecycleManager) UpdateSignals(ctx context.Context, lookbackDays int) (models.SignalUpdateReport, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultSignalLookbackDays
	}
	today := utils.StartOfDay(l.now())
	report := models.SignalUpdateReport{RunID: uuid.NewString()}

	// Pass 1: decay.
	active, err := l.relationships.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active relationships: %w", err)
	}
	for _, rel := range active {
		if !signalStale(rel, today) {
			continue
		}
		if err := l.relationships.UpdateSignal(ctx, rel.Key(), models.InactiveSignal(), today); err != nil {
			l.logger.Warn("signal decay failed",
				slog.String("facility", rel.FacilityID),
				slog.String("bellwether", rel.BellwetherFacilityID),
				slog.Any("error", err))
			continue
		}
		report.SignalsCleared++
	}

	// Pass 2: activation.
	since := today.AddDate(0, 0, -lookbackDays)
	recent, err := l.surveys.InspectionsSince(ctx, models.SurveyTypeHealthStandard, since)
	if err != nil {
		return report, fmt.Errorf("load inspections since %s: %w", since.Format(utils.DateLayout), err)
	}

	latestByFacility := make(map[string]time.Time)
	for _, rec := range recent {
		d := utils.StartOfDay(rec.Date)
		if cur, ok := latestByFacility[rec.FacilityID]; !ok || d.After(cur) {
			latestByFacility[rec.FacilityID] = d
		}
	}

	if len(latestByFacility) > 0 {
		surveyedIDs := make([]string, 0, len(latestByFacility))
		for id := range latestByFacility {
			surveyedIDs = append(surveyedIDs, id)
		}
		sort.Strings(surveyedIDs)

		rels, err := l.relationships.ListByBellwethers(ctx, surveyedIDs)
		if err != nil {
			return report, fmt.Errorf("list relationships by bellwether: %w", err)
		}

		surveyed := make(map[string]struct{})
		for _, rel := range rels {
			surveyed[rel.BellwetherFacilityID] = struct{}{}

			inspected := latestByFacility[rel.BellwetherFacilityID]
			if cur, ok := rel.Signal.Date(); ok && !inspected.After(cur) {
				// Signal dates only move forward.
				continue
			}
			wasActive := rel.Signal.Active()
			if err := l.relationships.UpdateSignal(ctx, rel.Key(), models.ActiveSignal(inspected), today); err != nil {
				l.logger.Warn("signal activation failed",
					slog.String("facility", rel.FacilityID),
					slog.String("bellwether", rel.BellwetherFacilityID),
					slog.Any("error", err))
				continue
			}
			if !wasActive {
				report.SignalsActivated++
			}
		}
		report.BellwethersSurveyed = len(surveyed)
	}

	// Pass 3: recompute derived ages ("today" advances between runs).
	if _, err := l.relationships.RefreshDaysSince(ctx, today); err != nil {
		l.logger.Warn("days-since refresh failed", slog.Any("error", err))
	}

	l.logger.Info("signal update complete",
		slog.String("run_id", report.RunID),
		slog.Int("activated", report.SignalsActivated),
		slog.Int("cleared", report.SignalsCleared),
		slog.Int("bellwethers_surveyed", report.BellwethersSurveyed))

	return report, nil
}

// signalStale reports whether an active signal has outlived
// max(max_days_gap, 30) days, or carries no date at all.
func signalStale(rel models.BellwetherRelationship, today time.Time) bool {
	date, ok := rel.Signal.Date()
	if !ok {
		return true
	}
	limit := rel.MaxDaysGap
	if limit < signalFloorDays {
		limit = signalFloorDays
	}
	return utils.DaysBetween(date, today) > limit
}
