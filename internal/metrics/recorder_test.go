package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveOperation("cluster", time.Now(), nil)
	r.ObserveOperation("cluster", time.Now(), errors.New("boom"))
	r.RecordClusters([]models.Cluster{{Type: models.ClusterSuspicious}, {Type: models.ClusterNormal}, {Type: models.ClusterSuspicious}})
	r.RecordSync(7, 0.9)
	r.RecordAlert()
	r.RecordHTTPRequest("GET", "/health", "200")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("cluster")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.clustersTotal.WithLabelValues("suspicious")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.syncedTxs))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/health", "200")))

	// a second registry accepts the same metric names
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveOperation("trace", time.Now(), nil)
		r.RecordClusters([]models.Cluster{{Type: models.ClusterNormal}})
		r.RecordTrace(3)
		r.RecordSync(1, 1)
		r.RecordAlert()
		r.RecordHTTPRequest("GET", "/", "200")
	})
}
