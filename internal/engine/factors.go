package engine

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FactorTable holds every constant of the daily-probability blend. The
// values are empirically chosen heuristics, not fitted parameters; they are
// loaded from YAML so deployments can tune them, and a fitted model could
// replace the whole blend without changing the forecast contract.
type FactorTable struct {
	BaseDailyRate    float64        `yaml:"baseDailyRate"`
	Weekday          WeekdayFactors `yaml:"weekday"`
	WeekFourPush     float64        `yaml:"weekFourPush"`
	FiscalPush       float64        `yaml:"fiscalPush"`
	HolidaySlowdown  float64        `yaml:"holidaySlowdown"`
	SignalMultiplier float64        `yaml:"signalMultiplier"`
	OverdueScale     float64        `yaml:"overdueScale"`
	DailyCap         float64        `yaml:"dailyCap"`
	WindowCap        float64        `yaml:"windowCap"`
	MinDailyKeep     float64        `yaml:"minDailyKeep"`
}

// WeekdayFactors scales the base daily rate per day of week. Inspections
// start midweek far more often than on weekends.
type WeekdayFactors struct {
	Monday    float64 `yaml:"monday"`
	Tuesday   float64 `yaml:"tuesday"`
	Wednesday float64 `yaml:"wednesday"`
	Thursday  float64 `yaml:"thursday"`
	Friday    float64 `yaml:"friday"`
	Saturday  float64 `yaml:"saturday"`
	Sunday    float64 `yaml:"sunday"`
}

// DefaultFactorTable returns the built-in heuristic constants.
func DefaultFactorTable() FactorTable {
	return FactorTable{
		BaseDailyRate: 0.03,
		Weekday: WeekdayFactors{
			Monday:    1.2,
			Tuesday:   1.3,
			Wednesday: 1.4,
			Thursday:  1.2,
			Friday:    0.8,
			Saturday:  0.1,
			Sunday:    0.1,
		},
		WeekFourPush:     1.3,
		FiscalPush:       1.1,
		HolidaySlowdown:  0.7,
		SignalMultiplier: 3.5,
		OverdueScale:     1.5,
		DailyCap:         0.95,
		WindowCap:        0.99,
		MinDailyKeep:     0.10,
	}
}

// LoadFactorTable reads a factor table from the provided YAML path, layered
// over the defaults so partial files only override what they name. An empty
// or missing path yields the defaults.
func LoadFactorTable(path string, logger *slog.Logger) (FactorTable, error) {
	table := DefaultFactorTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logger.Info("factor table not found, using defaults", slog.String("path", path))
			}
			return table, nil
		}
		return table, err
	}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return DefaultFactorTable(), err
	}
	return table, nil
}

// WeekdayFactor returns the scale for a day of week.
func (t FactorTable) WeekdayFactor(d time.Weekday) float64 {
	switch d {
	case time.Monday:
		return t.Weekday.Monday
	case time.Tuesday:
		return t.Weekday.Tuesday
	case time.Wednesday:
		return t.Weekday.Wednesday
	case time.Thursday:
		return t.Weekday.Thursday
	case time.Friday:
		return t.Weekday.Friday
	case time.Saturday:
		return t.Weekday.Saturday
	default:
		return t.Weekday.Sunday
	}
}

// SeasonalFactor returns the scale for a calendar month: an August-October
// fiscal year-end push and a December slowdown.
func (t FactorTable) SeasonalFactor(m time.Month) float64 {
	switch {
	case m >= time.August && m <= time.October:
		return t.FiscalPush
	case m == time.December:
		return t.HolidaySlowdown
	default:
		return 1.0
	}
}
