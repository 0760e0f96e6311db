package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_resolution_cache_hits_total",
		Help: "Total number of resolution cache hits, including cached absences.",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_resolution_cache_misses_total",
		Help: "Total number of resolution cache misses.",
	}, []string{"cache"})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_resolution_cache_evictions_total",
		Help: "Total number of entries displaced from a direct-mapped slot.",
	}, []string{"cache"})

	CacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_resolution_cache_invalidations_total",
		Help: "Total number of wholesale cache invalidations.",
	}, []string{"cache"})

	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enginelink_symbol_lookup_seconds",
		Help:    "Time spent in the authoritative symbol lookup service.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "outcome"})

	NavigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_navigations_total",
		Help: "Total number of navigation requests by kind and outcome.",
	}, []string{"kind", "outcome"})

	SchedulerQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_scheduler_actions_queued_total",
		Help: "Total number of model actions submitted to a session scheduler.",
	})

	SchedulerExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_scheduler_actions_executed_total",
		Help: "Total number of model actions executed on a session scheduler.",
	})

	SchedulerDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_scheduler_actions_discarded_total",
		Help: "Total number of queued model actions dropped at session end.",
	})

	SchedulerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_scheduler_action_panics_total",
		Help: "Total number of model actions that panicked.",
	})

	FramesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_transport_frames_sent_total",
		Help: "Total number of protocol frames written to the transport.",
	}, []string{"kind"})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_transport_frames_received_total",
		Help: "Total number of protocol frames read from the transport.",
	}, []string{"kind"})

	ActionsRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_actions_rate_limited_total",
		Help: "Total number of inbound actions dropped by the rate limiter.",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginelink_sessions_total",
		Help: "Total number of bridge sessions by the state they reached before ending.",
	}, []string{"reached"})

	SessionConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enginelink_session_connected",
		Help: "1 while a bridge session is connected, else 0.",
	})

	IndexReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_index_reloads_total",
		Help: "Total number of symbol index change notifications handled.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginelink_watcher_events_total",
		Help: "Total number of raw file system events seen by the index watcher.",
	})
)
