package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// PebbleCollector exports pebble engine metrics of a Pebble store.
type PebbleCollector struct {
	db      *pebble.DB
	metrics []pebbleMetric
}

func newPebbleMetric(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleMetric {
	return pebbleMetric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName("feedview", "pebble", name), help, nil, nil),
		kind:  kind,
		value: value,
	}
}

func NewPebbleCollector(p *Pebble) *PebbleCollector {
	return &PebbleCollector{
		db: p.DB(),
		metrics: []pebbleMetric{
			newPebbleMetric("compaction_count_total", "Total number of compactions performed",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			newPebbleMetric("compaction_estimated_debt_bytes", "Estimated bytes to compact to reach a stable state",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			newPebbleMetric("compaction_in_progress_bytes", "Bytes being compacted currently",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
			newPebbleMetric("flush_count_total", "Total number of memtable flushes",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Flush.Count) }),
			newPebbleMetric("memtable_size_bytes", "Current size of the memtable in bytes",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			newPebbleMetric("memtable_count", "Current count of memtables",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			newPebbleMetric("wal_size_bytes", "Size of live WAL data in bytes",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			newPebbleMetric("wal_bytes_written_total", "Total physical bytes written to the WAL",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
			newPebbleMetric("snapshots_open", "Number of open snapshots, one per running scan",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Snapshots.Count) }),
			newPebbleMetric("disk_usage_bytes", "Total disk space used by the store",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.DiskSpaceUsage()) }),
			newPebbleMetric("read_amplification", "Current read amplification of the LSM",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.ReadAmp()) }),
		},
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(metrics))
	}
}
