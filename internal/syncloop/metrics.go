package syncloop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvswatch_sync_ticks_total",
		Help: "Sync ticks that ran to completion, by outcome.",
	}, []string{"outcome"})
	ticksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cvswatch_sync_ticks_dropped_total",
		Help: "Timer ticks dropped because the previous tick was still in flight.",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cvswatch_sync_tick_duration_seconds",
		Help:    "Wall time of one poll-score-commit tick.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
	scoringRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvswatch_scoring_requests_total",
		Help: "Scoring requests issued, by result.",
	}, []string{"result"})
	discoveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cvswatch_discovery_failures_total",
		Help: "Ticks whose device gateway fetch failed.",
	})
	snapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cvswatch_store_version",
		Help: "Version of the most recently committed snapshot.",
	})
	nodesCommitted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cvswatch_nodes",
		Help: "Nodes in the most recently committed snapshot, by kind.",
	}, []string{"kind"})
)
