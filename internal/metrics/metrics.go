package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (store or input issues).
	OutcomeError = "error"
)

var (
	miningRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survey_intel",
			Name:      "mining_runs_total",
			Help:      "Total bellwether mining runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	miningRunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "survey_intel",
			Name:      "mining_run_seconds",
			Help:      "Mining run duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	relationshipsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "survey_intel",
			Name:      "relationships_written_total",
			Help:      "Bellwether relationships upserted by mining runs.",
		},
	)

	signalUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survey_intel",
			Name:      "signal_updates_total",
			Help:      "Total signal lifecycle runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	signalTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survey_intel",
			Name:      "signal_transitions_total",
			Help:      "Signal state transitions, partitioned by direction.",
		},
		[]string{"direction"},
	)

	forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survey_intel",
			Name:      "forecasts_total",
			Help:      "Total forecast queries, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	forecastSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "survey_intel",
			Name:      "forecast_seconds",
			Help:      "Forecast query latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
)

// Register attaches survey-intel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		miningRunsTotal,
		miningRunSeconds,
		relationshipsWritten,
		signalUpdatesTotal,
		signalTransitionsTotal,
		forecastsTotal,
		forecastSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveMiningRun records a mining run duration, outcome, and rows written.
func ObserveMiningRun(duration time.Duration, outcome string, written int) {
	miningRunsTotal.WithLabelValues(normalise(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	miningRunSeconds.Observe(duration.Seconds())
	if written > 0 {
		relationshipsWritten.Add(float64(written))
	}
}

// ObserveSignalUpdate records a lifecycle run with its transition counts.
func ObserveSignalUpdate(outcome string, activated, cleared int) {
	signalUpdatesTotal.WithLabelValues(normalise(outcome)).Inc()
	if activated > 0 {
		signalTransitionsTotal.WithLabelValues("activated").Add(float64(activated))
	}
	if cleared > 0 {
		signalTransitionsTotal.WithLabelValues("cleared").Add(float64(cleared))
	}
}

// ObserveForecast records a forecast query duration and outcome label.
func ObserveForecast(duration time.Duration, outcome string) {
	forecastsTotal.WithLabelValues(normalise(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	forecastSeconds.Observe(duration.Seconds())
}

func normalise(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}
