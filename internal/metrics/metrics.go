// Package metrics holds the Prometheus collectors shared across the
// simulator and an optional HTTP exposition endpoint.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linksim_solve_duration_seconds",
			Help:    "Duration of solver passes in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	SolveIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linksim_solve_iterations",
			Help:    "Iterations run per solve.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"kind"},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksim_runs_total",
			Help: "Total number of simulation runs, labeled by final status.",
		},
		[]string{"status"},
	)
	LinksGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linksim_links_generated_total",
			Help: "Total number of links added by rule applications.",
		},
	)
	GraphPages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "linksim_graph_pages",
			Help: "Number of pages in the most recently loaded graph.",
		},
	)
	GraphEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "linksim_graph_edges",
			Help: "Number of edges in the most recently loaded graph.",
		},
	)
	BudgetUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "linksim_teleport_budget_used",
			Help: "Teleportation budget consumed by the last constrained solve.",
		},
		[]string{"pocket"},
	)
)

func init() {
	prometheus.MustRegister(SolveDuration)
	prometheus.MustRegister(SolveIterations)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(LinksGenerated)
	prometheus.MustRegister(GraphPages)
	prometheus.MustRegister(GraphEdges)
	prometheus.MustRegister(BudgetUsed)
}

// Expose serves /metrics on addr. It blocks; run it in a goroutine.
func Expose(addr string) {
	slog.Info("exposing Prometheus metrics", "address", addr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("failed to start Prometheus metrics server", "error", err)
	}
}
