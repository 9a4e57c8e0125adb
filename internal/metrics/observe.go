package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer exports reconciliation and ingest counters. A nil *Observer is a no-op.
type Observer struct {
	sourceResults    *prometheus.CounterVec
	reconcileSeconds prometheus.Histogram
	parsedRecords    prometheus.Counter
}

func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		sourceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spend_dashboard",
			Name:      "source_results_total",
			Help:      "Data source outcomes per dashboard request.",
		}, []string{"source", "result"}),
		reconcileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spend_dashboard",
			Name:      "reconcile_seconds",
			Help:      "Time to reconcile spend and analytics for one request.",
			Buckets:   prometheus.DefBuckets,
		}),
		parsedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spend_dashboard",
			Name:      "parsed_records_total",
			Help:      "Spend records extracted from uploaded reports.",
		}),
	}
	reg.MustRegister(o.sourceResults, o.reconcileSeconds, o.parsedRecords)
	return o
}

func (o *Observer) SourceResult(source, result string) {
	if o == nil {
		return
	}
	o.sourceResults.WithLabelValues(source, result).Inc()
}

func (o *Observer) ReconcileDone(d time.Duration) {
	if o == nil {
		return
	}
	o.reconcileSeconds.Observe(d.Seconds())
}

func (o *Observer) RecordsParsed(n int) {
	if o == nil {
		return
	}
	o.parsedRecords.Add(float64(n))
}
