package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facilityiq/survey-intel/internal/engine"
	"github.com/facilityiq/survey-intel/internal/metrics"
	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

// Service is the facade through which callers reach the survey timing
// engine. The miner and lifecycle manager are batch operations safe to
// invoke repeatedly; the remaining calls are stateless reads.
type Service struct {
	logger        *slog.Logger
	miner         *engine.Miner
	lifecycle     *engine.LifecycleManager
	forecast      *engine.ForecastModel
	riskProfile   *engine.RiskProfileAggregator
	surveys       engine.SurveyStore
	relationships engine.RelationshipStore
	latencies     *utils.LatencyTracker
}

// New constructs the service facade.
func New(
	logger *slog.Logger,
	miner *engine.Miner,
	lifecycle *engine.LifecycleManager,
	forecast *engine.ForecastModel,
	riskProfile *engine.RiskProfileAggregator,
	surveys engine.SurveyStore,
	relationships engine.RelationshipStore,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:        logger,
		miner:         miner,
		lifecycle:     lifecycle,
		forecast:      forecast,
		riskProfile:   riskProfile,
		surveys:       surveys,
		relationships: relationships,
		latencies:     utils.NewLatencyTracker(1024),
	}
}

// MineRelationships runs a mining pass over the scope.
func (s *Service) MineRelationships(ctx context.Context, scope models.MineScope, cfg models.MineConfig) (models.MineReport, error) {
	start := time.Now()
	report, err := s.miner.Mine(ctx, scope, cfg)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveMiningRun(duration, metrics.OutcomeError, 0)
		return report, err
	}
	metrics.ObserveMiningRun(duration, metrics.OutcomeSuccess, report.RelationshipsCreated)
	return report, nil
}

// UpdateSignals runs the signal lifecycle passes over the trailing window.
func (s *Service) UpdateSignals(ctx context.Context, lookbackDays int) (models.SignalUpdateReport, error) {
	report, err := s.lifecycle.UpdateSignals(ctx, lookbackDays)
	if err != nil {
		metrics.ObserveSignalUpdate(metrics.OutcomeError, 0, 0)
		return report, err
	}
	metrics.ObserveSignalUpdate(metrics.OutcomeSuccess, report.SignalsActivated, report.SignalsCleared)
	return report, nil
}

// GetBellwethers returns both directions of a facility's relationships.
func (s *Service) GetBellwethers(ctx context.Context, facilityID string) (models.BellwetherSet, error) {
	if _, err := s.surveys.FacilityLocation(ctx, facilityID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return models.BellwetherSet{}, err
		}
		return models.BellwetherSet{}, fmt.Errorf("load facility %s: %w", facilityID, err)
	}

	forMe, err := s.relationships.ListForFacility(ctx, facilityID)
	if err != nil {
		return models.BellwetherSet{}, fmt.Errorf("list bellwethers for %s: %w", facilityID, err)
	}
	leads, err := s.relationships.ListForBellwether(ctx, facilityID)
	if err != nil {
		return models.BellwetherSet{}, fmt.Errorf("list dependents of %s: %w", facilityID, err)
	}

	return models.BellwetherSet{
		FacilityID:       facilityID,
		BellwethersForMe: forMe,
		BellwetherFor:    leads,
	}, nil
}

// GetActiveSignals reports the live signals pointing at a facility with an
// alert status and a recommended action.
func (s *Service) GetActiveSignals(ctx context.Context, facilityID string) (models.ActiveSignalReport, error) {
	if _, err := s.surveys.FacilityLocation(ctx, facilityID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return models.ActiveSignalReport{}, err
		}
		return models.ActiveSignalReport{}, fmt.Errorf("load facility %s: %w", facilityID, err)
	}

	rels, err := s.relationships.ListForFacility(ctx, facilityID)
	if err != nil {
		return models.ActiveSignalReport{}, fmt.Errorf("list relationships for %s: %w", facilityID, err)
	}

	report := models.ActiveSignalReport{FacilityID: facilityID}
	bestConfidence := 0.0
	var soonest time.Time

	for _, rel := range rels {
		date, ok := rel.Signal.Date()
		if !ok {
			continue
		}
		expected := date.AddDate(0, 0, int(rel.AvgDaysGap+0.5))
		report.ActiveSignals = append(report.ActiveSignals, models.ActiveSignalEntry{
			BellwetherFacilityID: rel.BellwetherFacilityID,
			SignalDate:           date,
			DaysSinceSignal:      rel.DaysSinceSignal,
			AvgDaysGap:           rel.AvgDaysGap,
			ConfidenceScore:      rel.ConfidenceScore,
			ExpectedBy:           expected,
		})
		if rel.ConfidenceScore > bestConfidence {
			bestConfidence = rel.ConfidenceScore
		}
		if soonest.IsZero() || expected.Before(soonest) {
			soonest = expected
		}
	}

	switch {
	case bestConfidence >= engine.HighConfidenceThreshold:
		report.AlertStatus = models.AlertStatusAlert
		report.RecommendedAction = fmt.Sprintf(
			"Begin survey preparation now; a high-confidence bellwether pattern points to an inspection around %s",
			soonest.Format(utils.DateLayout))
	case len(report.ActiveSignals) > 0:
		report.AlertStatus = models.AlertStatusWatch
		report.RecommendedAction = fmt.Sprintf(
			"Review readiness checklists; a bellwether pattern suggests an inspection around %s",
			soonest.Format(utils.DateLayout))
	default:
		report.AlertStatus = models.AlertStatusClear
		report.RecommendedAction = "No active bellwether signals; maintain routine preparation"
	}

	return report, nil
}

// GetForecast produces the inspection-timing forecast for a facility.
func (s *Service) GetForecast(ctx context.Context, facilityID string) (models.ForecastResult, error) {
	start := time.Now()
	result, err := s.forecast.Forecast(ctx, facilityID)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveForecast(duration, metrics.OutcomeError)
		return result, err
	}
	metrics.ObserveForecast(duration, metrics.OutcomeSuccess)

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("forecast latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
	return result, nil
}

// GetRiskProfile builds the prioritized compliance-prep profile for a facility.
func (s *Service) GetRiskProfile(ctx context.Context, facilityID string) (models.RiskProfile, error) {
	return s.riskProfile.Profile(ctx, facilityID)
}
