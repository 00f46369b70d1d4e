package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

const (
	// A bellwether inspection must fall 1-14 days (inclusive) before the
	// dependent facility's inspection to count as a precedence.
	minPrecedenceDays = 1
	maxPrecedenceDays = 14

	// HighConfidenceThreshold marks relationships worth surfacing first.
	HighConfidenceThreshold = 0.7
)

// Miner scans inspection history within a geographic scope and produces
// bellwether relationship rows. Each run is a full idempotent recomputation
// for its scope, never an incremental accumulation.
type Miner struct {
	surveys       SurveyStore
	relationships RelationshipStore
	logger        *slog.Logger
	now           func() time.Time
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger, surveys SurveyStore, relationships RelationshipStore) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{
		surveys:       surveys,
		relationships: relationships,
		logger:        logger,
		now:           time.Now,
	}
}

// Mine analyses every ordered facility pair in scope and upserts the
// relationships that clear both thresholds, pruning rows from prior runs
// that no longer qualify. An empty scope is a normal empty result.
func (m *Miner) Mine(ctx context.Context, scope models.MineScope, cfg models.MineConfig) (models.MineReport, error) {
	cfg = normaliseMineConfig(cfg)
	report := models.MineReport{RunID: uuid.NewString()}

	if strings.TrimSpace(scope.State) == "" {
		return report, utils.NewAppError("miner.Mine", "state is required", utils.ErrInvalidScope)
	}

	facilities, err := m.surveys.FacilitiesInScope(ctx, scope.State, scope.County)
	if err != nil {
		return report, fmt.Errorf("load facilities for scope %s/%s: %w", scope.State, scope.County, err)
	}
	report.FacilitiesAnalyzed = len(facilities)
	if len(facilities) == 0 {
		m.logger.Info("no facilities in scope", slog.String("state", scope.State), slog.String("county", scope.County))
		return report, nil
	}

	ids := make([]string, 0, len(facilities))
	for _, fac := range facilities {
		ids = append(ids, fac.FacilityID)
	}
	sort.Strings(ids)

	since := utils.StartOfDay(m.now()).AddDate(-cfg.LookbackYears, 0, 0)
	histories, err := m.surveys.InspectionHistories(ctx, ids, models.SurveyTypeHealthStandard, since)
	if err != nil {
		return report, fmt.Errorf("load inspection histories: %w", err)
	}

	for _, dates := range histories {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		report.InspectionsAnalyzed += len(dates)
	}

	// The per-run groupings live only in this map; nothing persists across
	// invocations except the relationship upserts below.
	computed := make(map[models.RelationshipKey]models.BellwetherRelationship)
	for _, bellwether := range ids {
		leadDates := histories[bellwether]
		if len(leadDates) == 0 {
			continue
		}
		for _, facility := range ids {
			if facility == bellwether {
				continue
			}
			depDates := histories[facility]
			if len(depDates) < cfg.MinOccurrences {
				continue
			}
			rel, ok := analysePair(bellwether, facility, leadDates, depDates, cfg)
			if !ok {
				continue
			}
			computed[rel.Key()] = rel
		}
	}

	// Write phase commits one relationship at a time: a failure loses only
	// the row being written, and the next run re-derives the same result.
	ranked := make([]models.BellwetherRelationship, 0, len(computed))
	for _, rel := range computed {
		ranked = append(ranked, rel)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ConfidenceScore != ranked[j].ConfidenceScore {
			return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
		}
		return ranked[i].FacilityID < ranked[j].FacilityID
	})

	for _, rel := range ranked {
		if err := m.relationships.Upsert(ctx, rel); err != nil {
			m.logger.Warn("relationship upsert failed",
				slog.String("facility", rel.FacilityID),
				slog.String("bellwether", rel.BellwetherFacilityID),
				slog.Any("error", err))
			continue
		}
		report.RelationshipsCreated++
		if rel.ConfidenceScore >= HighConfidenceThreshold {
			report.HighConfidenceCount++
		}
	}

	m.pruneStale(ctx, ids, computed)

	m.logger.Info("mining run complete",
		slog.String("run_id", report.RunID),
		slog.String("state", scope.State),
		slog.Int("facilities", report.FacilitiesAnalyzed),
		slog.Int("relationships", report.RelationshipsCreated),
		slog.Int("high_confidence", report.HighConfidenceCount))

	return report, nil
}

// pruneStale removes relationships fully inside the scope that a prior run
// produced but this recomputation did not.
func (m *Miner) pruneStale(ctx context.Context, scopeIDs []string, computed map[models.RelationshipKey]models.BellwetherRelationship) {
	existing, err := m.relationships.ListByFacilities(ctx, scopeIDs)
	if err != nil {
		m.logger.Warn("stale relationship scan failed", slog.Any("error", err))
		return
	}

	inScope := make(map[string]struct{}, len(scopeIDs))
	for _, id := range scopeIDs {
		inScope[id] = struct{}{}
	}

	for _, old := range existing {
		if _, ok := inScope[old.BellwetherFacilityID]; !ok {
			// Mined by a wider scope; leave it to that scope's runs.
			continue
		}
		if _, ok := computed[old.Key()]; ok {
			continue
		}
		if err := m.relationships.Delete(ctx, old.Key()); err != nil {
			m.logger.Warn("stale relationship delete failed",
				slog.String("facility", old.FacilityID),
				slog.String("bellwether", old.BellwetherFacilityID),
				slog.Any("error", err))
		}
	}
}

// analysePair scans the dependent facility's inspections for precedences by
// the candidate bellwether. Each dependent inspection counts at most one
// precedence (the first qualifying bellwether date).
func analysePair(bellwether, facility string, leadDates, depDates []time.Time, cfg models.MineConfig) (models.BellwetherRelationship, bool) {
	if len(leadDates) == 0 || len(depDates) == 0 {
		return models.BellwetherRelationship{}, false
	}

	gaps := make([]int, 0, len(depDates))
	years := make(map[int]struct{})
	for _, dep := range depDates {
		for _, lead := range leadDates {
			gap := utils.DaysBetween(lead, dep)
			if gap < minPrecedenceDays {
				// leadDates ascend, so later candidates are even closer.
				break
			}
			if gap <= maxPrecedenceDays {
				gaps = append(gaps, gap)
				years[dep.Year()] = struct{}{}
				break
			}
		}
	}

	if len(gaps) < cfg.MinOccurrences {
		return models.BellwetherRelationship{}, false
	}

	avg, stddev := meanStddev(gaps)
	confidence := (float64(len(gaps)) / float64(len(depDates))) * (1 - stddev/maxPrecedenceDays)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence < cfg.MinConfidence {
		return models.BellwetherRelationship{}, false
	}

	minGap, maxGap := gaps[0], gaps[0]
	for _, g := range gaps[1:] {
		if g < minGap {
			minGap = g
		}
		if g > maxGap {
			maxGap = g
		}
	}

	return models.BellwetherRelationship{
		FacilityID:           facility,
		BellwetherFacilityID: bellwether,
		TimesPreceded:        len(gaps),
		TotalSurveyCycles:    len(depDates),
		AvgDaysGap:           avg,
		StddevDaysGap:        stddev,
		MinDaysGap:           minGap,
		MaxDaysGap:           maxGap,
		PatternYears:         len(years),
		ConfidenceScore:      confidence,
		Signal:               models.InactiveSignal(),
	}, true
}

func normaliseMineConfig(cfg models.MineConfig) models.MineConfig {
	if cfg.MinOccurrences < 1 {
		cfg.MinOccurrences = 3
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		cfg.MinConfidence = 0.5
	}
	if cfg.LookbackYears <= 0 {
		cfg.LookbackYears = 3
	}
	return cfg
}

func meanStddev(values []int) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
