package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordDecision("EURUSDm", "BUY")
	r.RecordDecision("EURUSDm", "BUY")
	r.RecordRiskRejection("insufficient margin")
	r.RecordTraining(64, 0.52, 0.71)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("EURUSDm", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.riskRejections.WithLabelValues("insufficient margin")))
	assert.Equal(t, 64.0, testutil.ToFloat64(r.trainingSamples))
	assert.Equal(t, 0.71, testutil.ToFloat64(r.trainingAcc))
}

func TestRecorderOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
