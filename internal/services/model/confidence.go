// Package model implements the versioned confidence model: a logistic
// predictor over min/max scaled features, persisted as a (predictor, scaler)
// artifact and swapped in atomically after each retraining run.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/util"
)

// ColdStartScore is returned while no usable artifact is loaded.
const ColdStartScore = 0.5

const requestTimeout = 5 * time.Second

type loaded struct {
	artifact models.ModelArtifact
	clf      *Logistic
}

// ConfidenceModel loads an artifact once and serves predictions from memory.
// Reload is the only way a newly published artifact becomes visible.
type ConfidenceModel struct {
	store  domrepo.ArtifactStore
	cfg    config.Model
	layout []string
	l      *applogger.Logger

	current   atomic.Pointer[loaded]
	requested atomic.Bool

	mu        sync.RWMutex
	requester domrepo.TrainingRequester
}

func NewConfidenceModel(store domrepo.ArtifactStore, cfg config.Model, layout []string, l *applogger.Logger) *ConfidenceModel {
	if l == nil {
		l = applogger.Nop()
	}
	return &ConfidenceModel{
		store:  store,
		cfg:    cfg,
		layout: append([]string(nil), layout...),
		l:      l.Named("confidence_model"),
	}
}

// SetTrainingRequester wires the component that handles cold-start requests.
func (m *ConfidenceModel) SetTrainingRequester(r domrepo.TrainingRequester) {
	m.mu.Lock()
	m.requester = r
	m.mu.Unlock()
}

// Layout returns the feature order the model is trained on.
func (m *ConfidenceModel) Layout() []string { return append([]string(nil), m.layout...) }

// Load reads the current artifact. A missing artifact is a cold start, not an error.
func (m *ConfidenceModel) Load(ctx context.Context) error {
	err := m.Reload(ctx)
	if errs.IsKind(err, errs.KindModelMissing) {
		m.l.Warn("no model artifact, starting cold", applogger.String("dir", m.cfg.Dir))
		return nil
	}
	return err
}

// Reload swaps in the artifact currently published in the store. On failure
// the previously loaded artifact stays in use.
func (m *ConfidenceModel) Reload(ctx context.Context) error {
	a, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrModelMissing) {
			return errs.Wrap(errs.KindModelMissing, "reload", err)
		}
		return err
	}
	clf, err := LogisticFromParams(a.Predictor)
	if err != nil {
		return errs.Wrap(errs.KindModelMissing, "reload", err).WithReason("corrupt predictor " + a.Version)
	}
	if len(a.Scaler.Min) != clf.Dim() {
		return errs.New(errs.KindModelMissing, "reload", "scaler does not match predictor "+a.Version)
	}
	m.current.Store(&loaded{artifact: a, clf: clf})
	m.requested.Store(false)
	m.l.Info("model loaded",
		applogger.String("version", a.Version),
		applogger.Strings("features", a.Predictor.Features),
	)
	return nil
}

// Current returns the loaded artifact, if any.
func (m *ConfidenceModel) Current() (models.ModelArtifact, bool) {
	cur := m.current.Load()
	if cur == nil {
		return models.ModelArtifact{}, false
	}
	return cur.artifact, true
}

// Predict scores a feature vector. Without a usable artifact it returns the
// neutral score and asks once for a training run; it never blocks on training.
func (m *ConfidenceModel) Predict(ctx context.Context, fv models.FeatureVector) models.Prediction {
	cur := m.current.Load()
	if cur == nil {
		m.requestTraining(ctx, "cold start")
		return models.Prediction{Symbol: fv.Symbol, Score: ColdStartScore, ColdStart: true}
	}
	if !models.SameLayout(cur.artifact.Predictor.Features, fv.Names) {
		m.requestTraining(ctx, "feature layout changed")
		return models.Prediction{Symbol: fv.Symbol, Score: ColdStartScore, Version: cur.artifact.Version, ColdStart: true}
	}
	x, err := Scale(cur.artifact.Scaler, fv.Values)
	if err != nil {
		m.l.Warn("scale failed", applogger.String("symbol", fv.Symbol), applogger.Error(err))
		return models.Prediction{Symbol: fv.Symbol, Score: ColdStartScore, Version: cur.artifact.Version, ColdStart: true}
	}
	return models.Prediction{Symbol: fv.Symbol, Score: cur.clf.Prob(x), Version: cur.artifact.Version}
}

func (m *ConfidenceModel) requestTraining(ctx context.Context, reason string) {
	m.mu.RLock()
	r := m.requester
	m.mu.RUnlock()
	if r == nil || !m.requested.CompareAndSwap(false, true) {
		return
	}
	go func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()
		if err := r.RequestTraining(rctx, reason); err != nil {
			m.requested.Store(false)
			m.l.Warn("training request failed", applogger.String("reason", reason), applogger.Error(err))
			return
		}
		m.l.Info("training requested", applogger.String("reason", reason))
	}()
}

// Retrain fits a new artifact on labelled examples. It does not publish or
// load the result. Fewer than min_samples examples is InsufficientData.
func (m *ConfidenceModel) Retrain(ctx context.Context, examples []models.TrainingExample) (models.ModelArtifact, models.TrainingReport, error) {
	start := time.Now()
	d := len(m.layout)

	x := make([][]float64, 0, len(examples))
	y := make([]float64, 0, len(examples))
	labels := make([]int, 0, len(examples))
	positives := 0
	for _, ex := range examples {
		if len(ex.Features) != d {
			continue
		}
		x = append(x, ex.Features)
		y = append(y, float64(ex.Label))
		labels = append(labels, ex.Label)
		if ex.Label == 1 {
			positives++
		}
	}
	if len(x) < m.cfg.MinSamples {
		err := errs.Wrap(errs.KindInsufficientData, "retrain", errs.ErrInsufficientData).
			WithReason(fmt.Sprintf("%d usable examples, need %d", len(x), m.cfg.MinSamples))
		return models.ModelArtifact{}, models.TrainingReport{}, err
	}

	scaler, err := FitMinMax(m.layout, x)
	if err != nil {
		return models.ModelArtifact{}, models.TrainingReport{}, err
	}
	scaled := make([][]float64, len(x))
	for i, row := range x {
		if scaled[i], err = Scale(scaler, row); err != nil {
			return models.ModelArtifact{}, models.TrainingReport{}, err
		}
	}

	clf, incremental := m.warmStart()
	hist, err := clf.Fit(ctx, scaled, y, TrainOptions{
		Epochs:       m.cfg.Epochs,
		BatchSize:    m.cfg.BatchSize,
		LearningRate: m.cfg.LearningRate,
		L2:           m.cfg.L2,
		Seed:         m.cfg.Seed,
	})
	if err != nil {
		return models.ModelArtifact{}, models.TrainingReport{}, fmt.Errorf("fit: %w", err)
	}

	now := time.Now().UTC()
	artifact := models.ModelArtifact{
		Version:   util.VersionStamp(now),
		TrainedAt: now,
		Predictor: clf.Params(m.layout, len(hist)),
		Scaler:    scaler,
	}

	report := models.TrainingReport{
		Version:     artifact.Version,
		Samples:     len(x),
		Positives:   positives,
		Incremental: incremental,
		Epochs:      len(hist),
		History:     hist,
		TrainedAt:   now,
	}
	if n := len(hist); n > 0 {
		report.Loss = hist[n-1].Loss
		report.Accuracy = hist[n-1].Accuracy
		report.LossTrend = hist[n-1].Loss - hist[0].Loss
		report.AccuracyTrend = hist[n-1].Accuracy - hist[0].Accuracy
	}
	if imp, ierr := FeatureImportance(m.layout, scaled, labels, m.cfg.ForestTrees); ierr != nil {
		m.l.Warn("feature importance skipped", applogger.Error(ierr))
	} else {
		report.FeatureImportance = imp
	}
	report.Duration = time.Since(start)
	return artifact, report, nil
}

// warmStart continues from the loaded weights when the layout still matches.
func (m *ConfidenceModel) warmStart() (*Logistic, bool) {
	cur := m.current.Load()
	if cur == nil || !models.SameLayout(cur.artifact.Predictor.Features, m.layout) {
		return NewLogistic(len(m.layout)), false
	}
	clf, err := LogisticFromParams(cur.artifact.Predictor)
	if err != nil {
		return NewLogistic(len(m.layout)), false
	}
	return clf, true
}
