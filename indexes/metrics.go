package indexes

import "github.com/prometheus/client_golang/prometheus"

var IndexedBatches = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "batches",
})

var IndexedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "records",
}, []string{"result"})

var IndexEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "entries",
}, []string{"index"})

var BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "batch_duration",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
})

var ChangelogHead = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "changelog_head",
})

var ReindexCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "reindex",
}, []string{"index"})

var ReindexResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "reindex_results",
}, []string{"index", "result", "type"})

var ReindexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "feedview",
	Subsystem: "indexer",
	Name:      "reindex_duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"index"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		IndexedBatches,
		IndexedRecords,
		IndexEntries,
		BatchDuration,
		ChangelogHead,
		ReindexCount,
		ReindexResults,
		ReindexDuration,
	}
}
