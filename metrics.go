package feedview

import "github.com/prometheus/client_golang/prometheus"

var PlansExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "view",
	Name:      "plans",
}, []string{"mode", "index"})

var RecordsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "view",
	Name:      "records",
}, []string{"phase"})

var ResolutionMisses = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "view",
	Name:      "resolution_misses",
})

var LiveQueries = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "feedview",
	Subsystem: "view",
	Name:      "live_queries",
})

var FollowedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "view",
	Name:      "followed_records",
}, []string{"log"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		PlansExecuted,
		RecordsEmitted,
		ResolutionMisses,
		LiveQueries,
		FollowedRecords,
	}
}
