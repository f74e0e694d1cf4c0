package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constSource(v float64) FeatureSource {
	return SourceFunc(func(context.Context, string) (float64, error) { return v, nil })
}

func failingSource() FeatureSource {
	return SourceFunc(func(context.Context, string) (float64, error) { return 0, errors.New("upstream down") })
}

func newTestRecorder() *metrics.Recorder {
	return metrics.New(prometheus.NewRegistry())
}

func TestFeatureAggregator_AllSources(t *testing.T) {
	agg, err := NewFeatureAggregator(DefaultFeatureSpecs(
		constSource(0.2), constSource(-0.4), constSource(0.7), constSource(0.01), constSource(1.65),
	), time.Second, newTestRecorder(), applogger.Nop())
	require.NoError(t, err)

	fv, err := agg.Collect(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultFeatureOrder, fv.Names)
	assert.Equal(t, []float64{0.2, -0.4, 0.7, 0.01, 1.65}, fv.Values)
	assert.False(t, fv.Degraded())
	assert.Equal(t, "EURUSD", fv.Symbol)
}

func TestFeatureAggregator_DefaultsOnFailure(t *testing.T) {
	slow := SourceFunc(func(ctx context.Context, _ string) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	agg, err := NewFeatureAggregator(DefaultFeatureSpecs(
		failingSource(), constSource(math.NaN()), slow, constSource(0.02), nil,
	), 20*time.Millisecond, newTestRecorder(), applogger.Nop())
	require.NoError(t, err)

	fv, err := agg.Collect(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0.5, 0.02, 1.0}, fv.Values)
	assert.ElementsMatch(t, []string{
		models.FeatureOrderFlow, models.FeatureSentiment, models.FeatureInsight, models.FeatureRiskFactor,
	}, fv.Missing)
	assert.True(t, fv.IsMissing(models.FeatureInsight))
	assert.False(t, fv.IsMissing(models.FeatureVolatility))
}

func TestFeatureAggregator_AllFailed(t *testing.T) {
	agg, err := NewFeatureAggregator(DefaultFeatureSpecs(
		failingSource(), failingSource(), failingSource(), failingSource(), failingSource(),
	), time.Second, newTestRecorder(), applogger.Nop())
	require.NoError(t, err)

	fv, err := agg.Collect(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDataUnavailable))
	assert.ErrorIs(t, err, errs.ErrNoMarketData)
	assert.Equal(t, []float64{0, 0, 0.5, 0, 1.0}, fv.Values)
}

func TestFeatureAggregator_PanickingSource(t *testing.T) {
	boom := SourceFunc(func(context.Context, string) (float64, error) { panic("bad source") })
	agg, err := NewFeatureAggregator([]FeatureSpec{
		{Name: "a", Source: boom, Default: 3},
		{Name: "b", Source: constSource(1)},
	}, time.Second, newTestRecorder(), applogger.Nop())
	require.NoError(t, err)

	fv, err := agg.Collect(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, fv.Values)
}

func TestNewFeatureAggregator_RejectsDuplicates(t *testing.T) {
	_, err := NewFeatureAggregator([]FeatureSpec{{Name: "a"}, {Name: "a"}}, time.Second, newTestRecorder(), applogger.Nop())
	assert.True(t, errs.IsKind(err, errs.KindConfig))

	_, err = NewFeatureAggregator(nil, time.Second, newTestRecorder(), applogger.Nop())
	assert.Error(t, err)
}
