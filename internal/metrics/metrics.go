package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	BufferedSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gbox_replay_buffered_seconds",
		Help: "Total duration of samples currently retained per track",
	}, []string{"track"})
	SaveInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gbox_replay_save_in_progress",
		Help: "Whether a replay save is currently running",
	})
)

// Counters
var (
	SamplesAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbox_replay_samples_appended_total",
		Help: "Total samples appended to the replay buffer per track",
	}, []string{"track"})
	SamplesEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbox_replay_samples_evicted_total",
		Help: "Total samples evicted from the replay buffer per track",
	}, []string{"track"})
	SamplesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbox_replay_samples_dropped_total",
		Help: "Total samples dropped at ingestion by reason",
	}, []string{"reason"})
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbox_replay_saves_total",
		Help: "Total replay save attempts by outcome",
	}, []string{"outcome"})
	TrackAppendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbox_replay_track_append_failures_total",
		Help: "Tracks aborted mid-drain because the writer refused a sample",
	}, []string{"track"})
)

// Histograms
var (
	SaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gbox_replay_save_duration_seconds",
		Help:    "Wall time from save request to terminal state",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)
