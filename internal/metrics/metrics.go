package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modbridge"

var (
	// CommandsProcessed counts chat commands by outcome.
	CommandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_processed_total",
		Help:      "Chat commands processed, by command and outcome.",
	}, []string{"command", "status"})

	// PendingOpened counts deferred-reason bans started.
	PendingOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pending_opened_total",
		Help:      "Ban commands deferred awaiting a reason.",
	})

	// PendingConsumed counts follow-up messages consumed as reasons.
	PendingConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pending_consumed_total",
		Help:      "Follow-up messages consumed as ban reasons.",
	})

	// QueryRequests counts hits on the read-only HTTP surface.
	QueryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_requests_total",
		Help:      "Requests on the read-only query API.",
	}, []string{"endpoint"})

	// ActiveBans is a gauge for current registry entries per kind.
	ActiveBans = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_bans",
		Help:      "Current ban registry entries, by kind.",
	}, []string{"kind"})

	// SweepRemoved counts expired entries removed by sweeps.
	SweepRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_removed_total",
		Help:      "Expired temporary bans removed by sweeps.",
	})

	// ProfileLookups counts metadata fetches by outcome.
	ProfileLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_lookups_total",
		Help:      "Profile API lookups, by outcome.",
	}, []string{"status"})

	// ProfileLookupDuration records profile API latency.
	ProfileLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "profile_lookup_duration_seconds",
		Help:      "Profile API call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})

	// JobsEnqueued counts track jobs placed into the worker channel.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Track jobs placed into the worker channel.",
	})

	// JobsDropped counts track jobs discarded without a store write.
	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dropped_total",
		Help:      "Track jobs discarded without a store write.",
	}, []string{"reason"})

	// JobsProcessed counts worker completions.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Worker job completions.",
	}, []string{"status"})

	// WorkerQueueDepth tracks current job channel length.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_depth",
		Help:      "Current job channel buffer depth.",
	})

	// DBSizeBytes tracks bbolt on-disk file size.
	DBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_size_bytes",
		Help:      "bbolt on-disk file size in bytes.",
	})
)
