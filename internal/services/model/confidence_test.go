package model

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	"FinTrade/internal/repository"
	"FinTrade/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRequester struct{ n atomic.Int32 }

func (r *countingRequester) RequestTraining(context.Context, string) error {
	r.n.Add(1)
	return nil
}

func testConfig(dir string) config.Model {
	return config.Model{
		Dir:           dir,
		PredictorFile: "predictor.json",
		ScalerFile:    "scaler.json",
		KeepVersions:  3,
		MinSamples:    50,
		Epochs:        150,
		BatchSize:     16,
		LearningRate:  0.5,
		L2:            0.0001,
		Seed:          7,
		ForestTrees:   5,
	}
}

// separable builds n examples where the label follows order_flow's sign.
func separable(n int) []models.TrainingExample {
	out := make([]models.TrainingExample, n)
	for i := range out {
		flow := float64(i%10)/10 - 0.45
		label := 0
		if flow > 0 {
			label = 1
		}
		out[i] = models.TrainingExample{
			Features: []float64{flow, 0.1 * float64(i%3), 0.5, 0.01 * float64(i%7), 1.5},
			Label:    label,
		}
	}
	return out
}

func vector(values ...float64) models.FeatureVector {
	return models.FeatureVector{Symbol: "EURUSDm", Names: models.DefaultFeatureOrder, Values: values}
}

func TestColdStartReturnsNeutralAndRequestsOnce(t *testing.T) {
	store := repository.NewFileArtifactStore(testConfig(t.TempDir()), nil)
	m := NewConfidenceModel(store, testConfig(""), models.DefaultFeatureOrder, nil)
	req := &countingRequester{}
	m.SetTrainingRequester(req)

	require.NoError(t, m.Load(context.Background()))
	for i := 0; i < 5; i++ {
		p := m.Predict(context.Background(), vector(0.3, 0.2, 0.5, 0.01, 1))
		assert.Equal(t, ColdStartScore, p.Score)
		assert.True(t, p.ColdStart)
	}
	assert.Eventually(t, func() bool { return req.n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), req.n.Load())
}

func TestRetrainRequiresMinimumSamples(t *testing.T) {
	m := NewConfidenceModel(repository.NewFileArtifactStore(testConfig(t.TempDir()), nil), testConfig(""), models.DefaultFeatureOrder, nil)

	_, _, err := m.Retrain(context.Background(), separable(49))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInsufficientData))
	assert.True(t, errors.Is(err, errs.ErrInsufficientData))

	a, report, err := m.Retrain(context.Background(), separable(50))
	require.NoError(t, err)
	assert.Equal(t, 50, report.Samples)
	assert.NotEmpty(t, a.Version)
	assert.Equal(t, models.DefaultFeatureOrder, a.Predictor.Features)
	assert.Equal(t, models.DefaultFeatureOrder, a.Scaler.Features)
}

func TestRetrainLearnsAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	store := repository.NewFileArtifactStore(cfg, nil)
	m := NewConfidenceModel(store, cfg, models.DefaultFeatureOrder, nil)

	examples := separable(100)
	a, report, err := m.Retrain(ctx, examples)
	require.NoError(t, err)
	assert.False(t, report.Incremental)
	assert.GreaterOrEqual(t, report.Accuracy, 0.85)
	assert.Less(t, report.LossTrend, 0.0)
	assert.Len(t, report.History, cfg.Epochs)

	clf, err := LogisticFromParams(a.Predictor)
	require.NoError(t, err)
	last := examples[len(examples)-1].Features
	scaled, err := Scale(a.Scaler, last)
	require.NoError(t, err)
	inMemory := clf.Prob(scaled)

	require.NoError(t, store.Publish(ctx, a))
	require.NoError(t, m.Reload(ctx))

	p := m.Predict(ctx, vector(last...))
	assert.False(t, p.ColdStart)
	assert.Equal(t, a.Version, p.Version)
	assert.InDelta(t, inMemory, p.Score, 1e-12)

	up := m.Predict(ctx, vector(0.45, 0, 0.5, 0, 1.5))
	down := m.Predict(ctx, vector(-0.45, 0, 0.5, 0, 1.5))
	assert.Greater(t, up.Score, 0.5)
	assert.Less(t, down.Score, 0.5)

	_, report, err = m.Retrain(ctx, examples)
	require.NoError(t, err)
	assert.True(t, report.Incremental)
}

func TestPredictWithChangedLayoutFallsBackToNeutral(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	store := repository.NewFileArtifactStore(cfg, nil)
	m := NewConfidenceModel(store, cfg, models.DefaultFeatureOrder, nil)

	a, _, err := m.Retrain(ctx, separable(60))
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, a))
	require.NoError(t, m.Reload(ctx))

	fv := models.FeatureVector{Symbol: "EURUSDm", Names: []string{"order_flow", "sentiment"}, Values: []float64{1, 1}}
	p := m.Predict(ctx, fv)
	assert.True(t, p.ColdStart)
	assert.Equal(t, ColdStartScore, p.Score)
}

func TestDiscountedRiskReward(t *testing.T) {
	recs := []models.TradeRecord{
		{Profit: -5, StopLoss: 10},
		{Profit: 20, StopLoss: 10},
	}
	// newest weighs 1, older 0.9: (20 - 0.9*10) / 2
	assert.InDelta(t, 5.5, DiscountedRiskReward(recs, 0.9), 1e-9)
	assert.Zero(t, DiscountedRiskReward(nil, 0.9))
}
