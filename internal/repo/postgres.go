package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facilityiq/survey-intel/internal/models"
	"github.com/facilityiq/survey-intel/internal/utils"
)

// NewPostgresPool connects a pgx pool and verifies it with a ping.
func NewPostgresPool(ctx context.Context, dsn string, timeout time.Duration) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the engine needs when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
			facility_id VARCHAR(32) PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			state VARCHAR(2) NOT NULL,
			county VARCHAR(128) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS surveys (
			id BIGSERIAL PRIMARY KEY,
			facility_id VARCHAR(32) NOT NULL,
			survey_date DATE NOT NULL,
			survey_type VARCHAR(32) NOT NULL,
			citation_tags TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_surveys_facility_date
			ON surveys (facility_id, survey_date)`,
		`CREATE TABLE IF NOT EXISTS bellwether_relationships (
			facility_id VARCHAR(32) NOT NULL,
			bellwether_facility_id VARCHAR(32) NOT NULL,
			times_preceded INT NOT NULL,
			total_survey_cycles INT NOT NULL,
			avg_days_gap DOUBLE PRECISION NOT NULL,
			stddev_days_gap DOUBLE PRECISION NOT NULL,
			min_days_gap INT NOT NULL,
			max_days_gap INT NOT NULL,
			pattern_years INT NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL,
			is_active_signal BOOLEAN NOT NULL DEFAULT FALSE,
			signal_date DATE,
			days_since_signal INT NOT NULL DEFAULT 0,
			PRIMARY KEY (facility_id, bellwether_facility_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PostgresRecordStore reads inspection and citation data from the survey
// database. All queries are read-only.
type PostgresRecordStore struct {
	db *pgxpool.Pool
}

// NewPostgresRecordStore constructs a record store over the given pool.
func NewPostgresRecordStore(db *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) FacilitiesInScope(ctx context.Context, state, county string) ([]models.FacilityLocation, error) {
	query := `
		SELECT facility_id, latitude, longitude, state, county
		FROM facilities
		WHERE state = $1
		  AND ($2 = '' OR county = $2)
		ORDER BY facility_id
	`

	rows, err := s.db.Query(ctx, query, state, county)
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer rows.Close()

	var out []models.FacilityLocation
	for rows.Next() {
		var loc models.FacilityLocation
		if err := rows.Scan(&loc.FacilityID, &loc.Latitude, &loc.Longitude, &loc.State, &loc.County); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) InspectionHistories(ctx context.Context, facilityIDs []string, surveyType models.SurveyType, since time.Time) (map[string][]time.Time, error) {
	query := `
		SELECT facility_id, survey_date
		FROM surveys
		WHERE facility_id = ANY($1)
		  AND survey_type = $2
		  AND survey_date >= $3
		ORDER BY facility_id, survey_date
	`

	rows, err := s.db.Query(ctx, query, facilityIDs, string(surveyType), since)
	if err != nil {
		return nil, fmt.Errorf("query inspection histories: %w", err)
	}
	defer rows.Close()

	histories := make(map[string][]time.Time, len(facilityIDs))
	for rows.Next() {
		var id string
		var date time.Time
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		histories[id] = append(histories[id], date)
	}
	return histories, rows.Err()
}

func (s *PostgresRecordStore) InspectionsSince(ctx context.Context, surveyType models.SurveyType, since time.Time) ([]models.SurveyRecord, error) {
	query := `
		SELECT facility_id, survey_date, survey_type, citation_tags
		FROM surveys
		WHERE survey_type = $1
		  AND survey_date >= $2
		ORDER BY survey_date
	`

	rows, err := s.db.Query(ctx, query, string(surveyType), since)
	if err != nil {
		return nil, fmt.Errorf("query recent inspections: %w", err)
	}
	defer rows.Close()

	var out []models.SurveyRecord
	for rows.Next() {
		var rec models.SurveyRecord
		var surveyType string
		if err := rows.Scan(&rec.FacilityID, &rec.Date, &surveyType, &rec.CitationTags); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		rec.Type = models.SurveyType(surveyType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) LatestInspection(ctx context.Context, facilityID string, surveyType models.SurveyType) (time.Time, bool, error) {
	query := `
		SELECT survey_date
		FROM surveys
		WHERE facility_id = $1
		  AND survey_type = $2
		ORDER BY survey_date DESC
		LIMIT 1
	`

	var date time.Time
	err := s.db.QueryRow(ctx, query, facilityID, string(surveyType)).Scan(&date)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest inspection: %w", err)
	}
	return date, true, nil
}

func (s *PostgresRecordStore) FacilityLocation(ctx context.Context, facilityID string) (models.FacilityLocation, error) {
	query := `
		SELECT facility_id, latitude, longitude, state, county
		FROM facilities
		WHERE facility_id = $1
	`

	var loc models.FacilityLocation
	err := s.db.QueryRow(ctx, query, facilityID).Scan(&loc.FacilityID, &loc.Latitude, &loc.Longitude, &loc.State, &loc.County)
	if err == pgx.ErrNoRows {
		return models.FacilityLocation{}, fmt.Errorf("facility %s: %w", facilityID, utils.ErrNotFound)
	}
	if err != nil {
		return models.FacilityLocation{}, fmt.Errorf("query facility: %w", err)
	}
	return loc, nil
}

func (s *PostgresRecordStore) FacilityCitationCounts(ctx context.Context, facilityID string, since time.Time) (map[string]int, error) {
	query := `
		SELECT tag, COUNT(*)
		FROM surveys s
		CROSS JOIN LATERAL unnest(s.citation_tags) AS tag
		WHERE s.facility_id = $1
		  AND s.survey_date >= $2
		GROUP BY tag
	`

	return s.tagCounts(ctx, query, facilityID, since)
}

func (s *PostgresRecordStore) StateCitationCounts(ctx context.Context, state string, start, end time.Time) (map[string]int, error) {
	query := `
		SELECT tag, COUNT(*)
		FROM surveys s
		JOIN facilities f ON f.facility_id = s.facility_id
		CROSS JOIN LATERAL unnest(s.citation_tags) AS tag
		WHERE f.state = $1
		  AND s.survey_date >= $2
		  AND s.survey_date < $3
		GROUP BY tag
	`

	return s.tagCounts(ctx, query, state, start, end)
}

func (s *PostgresRecordStore) NationalCitationCounts(ctx context.Context, start, end time.Time) (map[string]int, error) {
	query := `
		SELECT tag, COUNT(*)
		FROM surveys s
		CROSS JOIN LATERAL unnest(s.citation_tags) AS tag
		WHERE s.survey_date >= $1
		  AND s.survey_date < $2
		GROUP BY tag
	`

	return s.tagCounts(ctx, query, start, end)
}

func (s *PostgresRecordStore) FacilityCount(ctx context.Context, state string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM facilities
		WHERE $1 = '' OR state = $1
	`

	var count int
	if err := s.db.QueryRow(ctx, query, state).Scan(&count); err != nil {
		return 0, fmt.Errorf("count facilities: %w", err)
	}
	return count, nil
}

func (s *PostgresRecordStore) tagCounts(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query citation counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tag string
		var count int
		if err := rows.Scan(&tag, &count); err != nil {
			return nil, fmt.Errorf("scan citation count: %w", err)
		}
		counts[tag] = count
	}
	return counts, rows.Err()
}

// PostgresRelationshipStore persists bellwether relationships.
type PostgresRelationshipStore struct {
	db *pgxpool.Pool
}

// NewPostgresRelationshipStore constructs a relationship store over the pool.
func NewPostgresRelationshipStore(db *pgxpool.Pool) *PostgresRelationshipStore {
	return &PostgresRelationshipStore{db: db}
}

const relationshipColumns = `
	facility_id,
	bellwether_facility_id,
	times_preceded,
	total_survey_cycles,
	avg_days_gap,
	stddev_days_gap,
	min_days_gap,
	max_days_gap,
	pattern_years,
	confidence_score,
	is_active_signal,
	signal_date,
	days_since_signal
`

// Upsert replaces the mined aggregates for a relationship. The lifecycle
// columns are deliberately left out of the conflict update; they belong to
// the signal lifecycle manager.
func (s *PostgresRelationshipStore) Upsert(ctx context.Context, rel models.BellwetherRelationship) error {
	if rel.FacilityID == rel.BellwetherFacilityID {
		return fmt.Errorf("relationship cannot be self-referential: %s", rel.FacilityID)
	}

	query := `
		INSERT INTO bellwether_relationships (` + relationshipColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NULL, 0)
		ON CONFLICT (facility_id, bellwether_facility_id) DO UPDATE SET
			times_preceded = EXCLUDED.times_preceded,
			total_survey_cycles = EXCLUDED.total_survey_cycles,
			avg_days_gap = EXCLUDED.avg_days_gap,
			stddev_days_gap = EXCLUDED.stddev_days_gap,
			min_days_gap = EXCLUDED.min_days_gap,
			max_days_gap = EXCLUDED.max_days_gap,
			pattern_years = EXCLUDED.pattern_years,
			confidence_score = EXCLUDED.confidence_score
	`

	_, err := s.db.Exec(ctx, query,
		rel.FacilityID,
		rel.BellwetherFacilityID,
		rel.TimesPreceded,
		rel.TotalSurveyCycles,
		rel.AvgDaysGap,
		rel.StddevDaysGap,
		rel.MinDaysGap,
		rel.MaxDaysGap,
		rel.PatternYears,
		rel.ConfidenceScore,
	)
	if err != nil {
		return fmt.Errorf("upsert relationship: %w", err)
	}
	return nil
}

func (s *PostgresRelationshipStore) Delete(ctx context.Context, key models.RelationshipKey) error {
	query := `
		DELETE FROM bellwether_relationships
		WHERE facility_id = $1 AND bellwether_facility_id = $2
	`

	if _, err := s.db.Exec(ctx, query, key.FacilityID, key.BellwetherFacilityID); err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}
	return nil
}

func (s *PostgresRelationshipStore) ListForFacility(ctx context.Context, facilityID string) ([]models.BellwetherRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM bellwether_relationships
		WHERE facility_id = $1
		ORDER BY confidence_score DESC
	`

	return s.queryRelationships(ctx, query, facilityID)
}

func (s *PostgresRelationshipStore) ListForBellwether(ctx context.Context, facilityID string) ([]models.BellwetherRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM bellwether_relationships
		WHERE bellwether_facility_id = $1
		ORDER BY confidence_score DESC
	`

	return s.queryRelationships(ctx, query, facilityID)
}

func (s *PostgresRelationshipStore) ListByFacilities(ctx context.Context, facilityIDs []string) ([]models.BellwetherRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM bellwether_relationships
		WHERE facility_id = ANY($1)
	`

	return s.queryRelationships(ctx, query, facilityIDs)
}

func (s *PostgresRelationshipStore) ListByBellwethers(ctx context.Context, bellwetherIDs []string) ([]models.BellwetherRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM bellwether_relationships
		WHERE bellwether_facility_id = ANY($1)
	`

	return s.queryRelationships(ctx, query, bellwetherIDs)
}

func (s *PostgresRelationshipStore) ListActive(ctx context.Context) ([]models.BellwetherRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM bellwether_relationships
		WHERE is_active_signal
	`

	return s.queryRelationships(ctx, query)
}

func (s *PostgresRelationshipStore) UpdateSignal(ctx context.Context, key models.RelationshipKey, signal models.SignalState, now time.Time) error {
	query := `
		UPDATE bellwether_relationships
		SET is_active_signal = $3,
		    signal_date = $4,
		    days_since_signal = $5
		WHERE facility_id = $1 AND bellwether_facility_id = $2
	`

	var signalDate *time.Time
	if date, ok := signal.Date(); ok {
		signalDate = &date
	}

	tag, err := s.db.Exec(ctx, query,
		key.FacilityID,
		key.BellwetherFacilityID,
		signal.Active(),
		signalDate,
		signal.DaysSince(now),
	)
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relationship %s/%s: %w", key.FacilityID, key.BellwetherFacilityID, utils.ErrNotFound)
	}
	return nil
}

func (s *PostgresRelationshipStore) RefreshDaysSince(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE bellwether_relationships
		SET days_since_signal = GREATEST(0, $1::date - signal_date)
		WHERE is_active_signal
	`

	tag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("refresh days since signal: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresRelationshipStore) queryRelationships(ctx context.Context, query string, args ...any) ([]models.BellwetherRelationship, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var out []models.BellwetherRelationship
	for rows.Next() {
		var rel models.BellwetherRelationship
		var active bool
		var signalDate *time.Time
		var daysSince int
		if err := rows.Scan(
			&rel.FacilityID,
			&rel.BellwetherFacilityID,
			&rel.TimesPreceded,
			&rel.TotalSurveyCycles,
			&rel.AvgDaysGap,
			&rel.StddevDaysGap,
			&rel.MinDaysGap,
			&rel.MaxDaysGap,
			&rel.PatternYears,
			&rel.ConfidenceScore,
			&active,
			&signalDate,
			&daysSince,
		); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if active && signalDate != nil {
			rel.Signal = models.ActiveSignal(*signalDate)
		} else {
			rel.Signal = models.InactiveSignal()
		}
		rel.DaysSinceSignal = daysSince
		out = append(out, rel)
	}
	return out, rows.Err()
}
