package vfs

import "github.com/prometheus/client_golang/prometheus"

// metrics is the prometheus surface: reconcile timing/size, and the parse
// and commit failure modes that are otherwise only logged. Logging alone
// makes those invisible to an operator; a counter does not.
type metrics struct {
	reconcileSeconds prometheus.Histogram
	rootEntries      prometheus.Gauge
	buildEpoch       prometheus.Gauge
	parseFailures    prometheus.Counter
	commitFailures   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		reconcileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "configfs_reconcile_seconds",
			Help:    "Time spent rebuilding the root directory cache.",
			Buckets: prometheus.DefBuckets,
		}),
		rootEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "configfs_root_entries",
			Help: "Number of package files currently cached in the root directory.",
		}),
		buildEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "configfs_build_epoch",
			Help: "Monotonically increasing counter of reconcile passes.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configfs_parse_failures_total",
			Help: "Number of times a dirty buffer failed to parse on release.",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configfs_commit_failures_total",
			Help: "Number of times the backing store rejected a translated commit.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.reconcileSeconds, m.rootEntries, m.buildEpoch, m.parseFailures, m.commitFailures)
	}
	return m
}
