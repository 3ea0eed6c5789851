package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rawblock/txflow-engine/pkg/models"
)

// Recorder records engine metrics in Prometheus. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	latency          *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	clustersTotal    *prometheus.CounterVec
	traceSources     prometheus.Histogram
	syncedTxs        prometheus.Counter
	clusterAgreement prometheus.Histogram
	alertsSent       prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

// New registers the engine metrics with reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txflow",
			Name:      "operation_duration_seconds",
			Help:      "Duration of analysis operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txflow",
			Name:      "errors_total",
			Help:      "Total failed analysis operations",
		}, []string{"operation"}),
		clustersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txflow",
			Name:      "clusters_total",
			Help:      "Clusters produced, by classification",
		}, []string{"type"}),
		traceSources: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txflow",
			Name:      "trace_sources",
			Help:      "Funding sources returned per provenance trace",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		syncedTxs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "txflow",
			Subsystem: "scanner",
			Name:      "transactions_synced_total",
			Help:      "Transactions pulled from the chain and stored",
		}),
		clusterAgreement: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txflow",
			Subsystem: "scanner",
			Name:      "cluster_agreement",
			Help:      "Adjusted Rand index between a wallet's clusters before and after a sync",
			Buckets:   []float64{-0.5, 0, 0.25, 0.5, 0.75, 0.9, 0.99, 1},
		}),
		alertsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "txflow",
			Name:      "alerts_sent_total",
			Help:      "Suspicious-cluster alerts broadcast to stream subscribers",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveOperation records the latency and outcome of one operation
func (r *Recorder) ObserveOperation(op string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		r.errorsTotal.WithLabelValues(op).Inc()
	}
}

// RecordClusters counts clusters by classification
func (r *Recorder) RecordClusters(clusters []models.Cluster) {
	if r == nil {
		return
	}
	for _, c := range clusters {
		r.clustersTotal.WithLabelValues(string(c.Type)).Inc()
	}
}

// RecordTrace records the size of a provenance trace result
func (r *Recorder) RecordTrace(sources int) {
	if r == nil {
		return
	}
	r.traceSources.Observe(float64(sources))
}

// RecordSync records a completed wallet sync
func (r *Recorder) RecordSync(stored int, agreement float64) {
	if r == nil {
		return
	}
	r.syncedTxs.Add(float64(stored))
	r.clusterAgreement.Observe(agreement)
}

// RecordAlert counts a broadcast alert
func (r *Recorder) RecordAlert() {
	if r == nil {
		return
	}
	r.alertsSent.Inc()
}

// RecordHTTPRequest counts a served HTTP request
func (r *Recorder) RecordHTTPRequest(method, route, status string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, status).Inc()
}
