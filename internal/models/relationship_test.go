package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSignalStateJSON(t *testing.T) {
	date := time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC)

	data, err := json.Marshal(ActiveSignal(date))
	if err != nil {
		t.Fatalf("marshal active: %v", err)
	}
	if !strings.Contains(string(data), "2025-06-07") {
		t.Fatalf("active signal must carry its date: %s", data)
	}

	var state SignalState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := state.Date()
	if !ok || !got.Equal(date) {
		t.Fatalf("round trip lost the signal date: %v (ok=%v)", got, ok)
	}

	data, err = json.Marshal(InactiveSignal())
	if err != nil {
		t.Fatalf("marshal inactive: %v", err)
	}
	if strings.Contains(string(data), "signal_date") {
		t.Fatalf("inactive signal must not carry a date: %s", data)
	}
}

func TestSignalStateDaysSince(t *testing.T) {
	date := time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC)

	if got := ActiveSignal(date).DaysSince(date.AddDate(0, 0, 3)); got != 3 {
		t.Fatalf("expected 3 days, got %d", got)
	}
	if got := ActiveSignal(date).DaysSince(date.AddDate(0, 0, -1)); got != 0 {
		t.Fatalf("future signal date must clamp to zero, got %d", got)
	}
	if got := InactiveSignal().DaysSince(date); got != 0 {
		t.Fatalf("inactive signal has no age, got %d", got)
	}
}
