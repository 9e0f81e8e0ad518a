package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ranktime",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Number of events ingested per rank.",
		}, []string{"rank"},
	)
	linesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ranktime",
			Subsystem: "ingest",
			Name:      "rejected_lines_total",
			Help:      "Number of input lines that could not be parsed into an event.",
		},
	)
	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ranktime",
			Subsystem: "event",
			Name:      "duration_seconds",
			Help:      "Event duration (finish - start) at ingestion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"rank"},
	)
	streamEvents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ranktime",
			Subsystem: "stream",
			Name:      "events",
			Help:      "Events held by the rank's stream at the last stats computation.",
		}, []string{"rank"},
	)
	streamMeanGap = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ranktime",
			Subsystem: "stream",
			Name:      "mean_gap_seconds",
			Help:      "Mean idle gap between consecutive events at the last stats computation.",
		}, []string{"rank"},
	)
	streamMeanDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ranktime",
			Subsystem: "stream",
			Name:      "mean_duration_seconds",
			Help:      "Mean event duration at the last stats computation.",
		}, []string{"rank"},
	)
	exportedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ranktime",
			Subsystem: "export",
			Name:      "rows_total",
			Help:      "Rows sent to export sinks.",
		}, []string{"sink"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{eventsIngested, linesRejected, eventDuration, streamEvents, streamMeanGap, streamMeanDuration, exportedRows}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveEvent(rank string, d time.Duration) {
	if regOK.Load() {
		eventsIngested.WithLabelValues(rank).Inc()
		eventDuration.WithLabelValues(rank).Observe(d.Seconds())
	}
}

func IncRejected() {
	if regOK.Load() {
		linesRejected.Inc()
	}
}

// SetStreamStats publishes the summary of one rank's freshly computed stats.
func SetStreamStats(rank string, events int, gaps, durations []time.Duration) {
	if !regOK.Load() {
		return
	}
	streamEvents.WithLabelValues(rank).Set(float64(events))
	streamMeanGap.WithLabelValues(rank).Set(meanSeconds(gaps))
	streamMeanDuration.WithLabelValues(rank).Set(meanSeconds(durations))
}

func AddExported(sink string, n int) {
	if regOK.Load() {
		exportedRows.WithLabelValues(sink).Add(float64(n))
	}
}

func meanSeconds(ds []time.Duration) float64 {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return (sum / time.Duration(len(ds))).Seconds()
}
