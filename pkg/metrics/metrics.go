// Package metrics holds the Prometheus collectors shared by the ETL run and the query API.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "defisnap"

// Collectors is a registry plus the collectors registered on it. Each process builds
// one, so tests can use independent instances.
type Collectors struct {
	Registry *prometheus.Registry

	RowsInserted  *prometheus.CounterVec
	RowsSwept     *prometheus.CounterVec
	ItemsSkipped  *prometheus.CounterVec
	JobRuns       *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	LastSuccessTS *prometheus.GaugeVec
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collectors{
		Registry: reg,
		RowsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Fact rows added to the warehouse.",
		}, []string{"table", "protocol"}),
		RowsSwept: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_swept_total",
			Help:      "Rows deleted by the retention sweeper.",
		}, []string{"protocol"}),
		ItemsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Provider items skipped after a failed fetch.",
		}, []string{"job", "protocol"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job executions by outcome.",
		}, []string{"job", "protocol", "status"}), // status: success, failed
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution time.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Query API requests by route and status code.",
		}, []string{"route", "code"}),
		LastSuccessTS: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp",
			Help:      "Unix time of the last successful job run.",
		}, []string{"job", "protocol"}),
	}
}

// Push sends the registry to a Prometheus pushgateway under the given job name.
func (c *Collectors) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
