package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFactorTableDefaults(t *testing.T) {
	table, err := LoadFactorTable("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table != DefaultFactorTable() {
		t.Fatalf("empty path must yield the defaults")
	}

	table, err = LoadFactorTable(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if table != DefaultFactorTable() {
		t.Fatalf("missing file must yield the defaults")
	}
}

func TestLoadFactorTablePartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factors.yaml")
	content := "baseDailyRate: 0.05\nweekday:\n  wednesday: 2.0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	table, err := LoadFactorTable(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.BaseDailyRate != 0.05 {
		t.Fatalf("expected overridden base rate, got %v", table.BaseDailyRate)
	}
	if table.Weekday.Wednesday != 2.0 {
		t.Fatalf("expected overridden wednesday factor, got %v", table.Weekday.Wednesday)
	}
	if table.SignalMultiplier != 3.5 {
		t.Fatalf("unnamed keys must keep their defaults, got %v", table.SignalMultiplier)
	}
}

func TestSeasonalFactor(t *testing.T) {
	table := DefaultFactorTable()

	for _, m := range []time.Month{time.August, time.September, time.October} {
		if got := table.SeasonalFactor(m); got != table.FiscalPush {
			t.Fatalf("%s: expected fiscal push, got %v", m, got)
		}
	}
	if got := table.SeasonalFactor(time.December); got != table.HolidaySlowdown {
		t.Fatalf("December: expected holiday slowdown, got %v", got)
	}
	if got := table.SeasonalFactor(time.April); got != 1.0 {
		t.Fatalf("April: expected neutral factor, got %v", got)
	}
}

func TestWeekdayFactorCoversAllDays(t *testing.T) {
	table := DefaultFactorTable()
	for d := time.Sunday; d <= time.Saturday; d++ {
		if table.WeekdayFactor(d) <= 0 {
			t.Fatalf("%s: expected a positive factor", d)
		}
	}
	if table.WeekdayFactor(time.Wednesday) <= table.WeekdayFactor(time.Friday) {
		t.Fatalf("midweek must outweigh Friday")
	}
}
