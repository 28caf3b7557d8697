package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "cache",
		Name:      "fetches_total",
		Help:      "Network fetches started by the resource cache.",
	})
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Reads served from fresh cached data.",
	})
	dedupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "cache",
		Name:      "dedup_total",
		Help:      "Reads that joined an in-flight request instead of starting one.",
	})
	discardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "cache",
		Name:      "stale_responses_discarded_total",
		Help:      "Responses dropped because something newer superseded them.",
	})
)
