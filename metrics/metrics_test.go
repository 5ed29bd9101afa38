package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	collectors := []prometheus.Collector{
		ModelLoaded,
		InFlightPredictions,
		PredictionsTotal,
		LabelsTotal,
		AcquisitionAttemptsTotal,
		HTTPRequestsTotal,
		RateLimitedTotal,
		RecordsSavedTotal,
		StageLatency,
	}
	for _, c := range collectors {
		err := prometheus.DefaultRegisterer.Register(c)
		var already prometheus.AlreadyRegisteredError
		require.ErrorAs(t, err, &already)
	}
}

func TestPredictionCounter(t *testing.T) {
	c := PredictionsTotal.WithLabelValues("samples", OutcomeSilent)
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
