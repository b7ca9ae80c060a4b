// Package metrics holds Prometheus instruments that are used across the
// refresh pipeline.  All collectors are registered with the global registry,
// so importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RefreshEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_enqueued_total",
			Help: "Refresh jobs successfully inserted and queued, by page type.",
		}, []string{"page_type"})

	RefreshDedupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_dedup_skips_total",
			Help: "Enqueue attempts skipped because a non-terminal job already exists.",
		}, []string{"page_type"})

	RefreshPublishTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_publish_total",
			Help: "Drafts published by an admin.",
		})

	RefreshRejectTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_reject_total",
			Help: "Drafts rejected by an admin.",
		})

	QAGateBlockTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qa_gate_block_total",
			Help: "QA-gate checks that returned a BLOCK verdict.",
		})

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Queue jobs currently waiting or running.",
		})

	ReaperFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_failed_total",
			Help: "Stuck processing rows transitioned to failed by the reaper.",
		})

	FamilyLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_load_total",
			Help: "Cumulative number of family records loaded into the cache.",
		})

	FamilyLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_load_errors_total",
			Help: "Cumulative number of family load errors.",
		})

	FamilyEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_evict_total",
			Help: "Cumulative number of families evicted from the cache.",
		})

	ActiveFamilies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_families",
			Help: "Number of family records currently cached in memory.",
		})
)

func init() {
	prometheus.MustRegister(
		RefreshEnqueuedTotal,
		RefreshDedupTotal,
		RefreshPublishTotal,
		RefreshRejectTotal,
		QAGateBlockTotal,
		QueueDepth,
		ReaperFailedTotal,
		FamilyLoadTotal,
		FamilyLoadErrorsTotal,
		FamilyEvictTotal,
		ActiveFamilies,
	)
}
