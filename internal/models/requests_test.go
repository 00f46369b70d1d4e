package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestActiveSignalReportJSON(t *testing.T) {
	signalDate := time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC)
	state := ActiveSignal(signalDate)
	date, ok := state.Date()
	if !ok {
		t.Fatalf("expected an active state")
	}

	report := ActiveSignalReport{
		FacilityID: "fac-b",
		ActiveSignals: []ActiveSignalEntry{{
			BellwetherFacilityID: "fac-a",
			SignalDate:           date,
			DaysSinceSignal:      3,
			AvgDaysGap:           6,
			ConfidenceScore:      0.93,
			ExpectedBy:           date.AddDate(0, 0, 6),
		}},
		AlertStatus:       AlertStatusAlert,
		RecommendedAction: "Begin survey preparation now",
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	for _, want := range []string{
		`"facility_id":"fac-b"`,
		`"bellwether_facility_id":"fac-a"`,
		`"signal_date":"2025-06-07T00:00:00Z"`,
		`"alert_status":"alert"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("report JSON missing %s: %s", want, data)
		}
	}

	var decoded ActiveSignalReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(decoded.ActiveSignals) != 1 || !decoded.ActiveSignals[0].SignalDate.Equal(signalDate) {
		t.Fatalf("unexpected decoded signals: %+v", decoded.ActiveSignals)
	}
}
