// Package metrics exposes HashPass's Prometheus instrumentation, mirroring
// the teacher's pkg/metrics shape (CounterVec/Gauge/HistogramVec registered
// at package init, served on a dedicated mux).
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashpass_connections_total",
			Help: "Total WebSocket connection attempts by outcome.",
		},
		[]string{"status"},
	)

	PuzzlesSolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashpass_puzzles_solved_total",
			Help: "Total puzzles solved, labeled by difficulty at solve time.",
		},
		[]string{"difficulty"},
	)

	PuzzlesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashpass_puzzles_failed_total",
			Help: "Total rejected submissions, labeled by reason.",
		},
		[]string{"reason"},
	)

	CurrentDifficulty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashpass_current_difficulty",
			Help: "Current fractional difficulty value.",
		},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashpass_active_connections",
			Help: "Currently registered WebSocket connections.",
		},
	)

	SolveTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashpass_solve_time_seconds",
			Help:    "Observed mining-time-accumulator values at solve time.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"difficulty"},
	)

	ProcessingTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashpass_processing_time_seconds",
			Help:    "Time spent inside the verify critical section.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	DifficultyAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashpass_difficulty_adjustments_total",
			Help: "Difficulty controller adjustments by direction.",
		},
		[]string{"direction"},
	)

	AverageSolveTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashpass_average_solve_time_seconds",
			Help: "EMA-smoothed solve time tracked by the difficulty controller.",
		},
	)

	MiningTimeAccumulatorSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashpass_mining_time_accumulator_seconds",
			Help: "Accumulated mining time for the current puzzle.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		PuzzlesSolvedTotal,
		PuzzlesFailedTotal,
		CurrentDifficulty,
		ActiveConnections,
		SolveTimeSeconds,
		ProcessingTimeSeconds,
		DifficultyAdjustmentsTotal,
		AverageSolveTimeSeconds,
		MiningTimeAccumulatorSeconds,
	)
}

// RecordConnection increments the connection counter for the given outcome
// ("accepted", or "rejected_ban", "rejected_ua", "rejected_duplicate",
// "rejected_captcha").
func RecordConnection(status string) {
	ConnectionsTotal.WithLabelValues(status).Inc()
}

// RecordPuzzleSolved records a win at the given integer difficulty.
func RecordPuzzleSolved(difficulty int) {
	PuzzlesSolvedTotal.WithLabelValues(strconv.Itoa(difficulty)).Inc()
}

// RecordPuzzleFailed records a rejected submission by reason code.
func RecordPuzzleFailed(reason string) {
	PuzzlesFailedTotal.WithLabelValues(reason).Inc()
}

// UpdateCurrentDifficulty sets the fractional difficulty gauge.
func UpdateCurrentDifficulty(difficultyFloat float64) {
	CurrentDifficulty.Set(difficultyFloat)
}

// RecordProcessingTime observes critical-section latency by outcome.
func RecordProcessingTime(outcome string, d time.Duration) {
	ProcessingTimeSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordDifficultyAdjustment records a controller step by sign.
func RecordDifficultyAdjustment(step float64) {
	direction := "hold"
	if step > 0 {
		direction = "up"
	} else if step < 0 {
		direction = "down"
	}
	DifficultyAdjustmentsTotal.WithLabelValues(direction).Inc()
}

// StartMetricsServer starts Prometheus's /metrics endpoint on its own mux,
// matching the teacher's pattern of isolating it from the main API mux.
func StartMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := ":" + strconv.Itoa(port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil &&
			!strings.Contains(err.Error(), "address already in use") {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
