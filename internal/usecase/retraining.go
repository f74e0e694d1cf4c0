package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/services/model"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/scheduler"
)

// Trainer fits and reloads the confidence model.
type Trainer interface {
	Retrain(ctx context.Context, examples []models.TrainingExample) (models.ModelArtifact, models.TrainingReport, error)
	Reload(ctx context.Context) error
	Layout() []string
}

// RetrainingLoop turns realised trades into a new model artifact on its own
// period, and on demand.
type RetrainingLoop struct {
	history    domrepo.TradeHistory
	store      domrepo.ArtifactStore
	trainer    Trainer
	events     domrepo.EventPublisher
	metrics    domrepo.Metrics
	cfg        config.Retraining
	minSamples int
	l          *applogger.Logger

	trigger chan struct{}
	runMu   sync.Mutex

	mu      sync.RWMutex
	reports []models.TrainingReport
}

func NewRetrainingLoop(
	cfg config.Retraining,
	minSamples int,
	history domrepo.TradeHistory,
	store domrepo.ArtifactStore,
	trainer Trainer,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *RetrainingLoop {
	if cfg.ReportWindow <= 0 {
		cfg.ReportWindow = 20
	}
	return &RetrainingLoop{
		history:    history,
		store:      store,
		trainer:    trainer,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		minSamples: minSamples,
		l:          l.Named("retraining"),
		trigger:    make(chan struct{}, 1),
	}
}

// Run retrains every interval and whenever a training request arrives.
// Failures are logged and the loop keeps going.
func (r *RetrainingLoop) Run(ctx context.Context) error {
	return scheduler.RunUntilCancelled(ctx, r.cfg.Interval, func(ctx context.Context) error {
		_, err := r.RunOnce(ctx)
		if errs.IsKind(err, errs.KindInsufficientData) {
			return nil
		}
		return err
	},
		scheduler.WithName("retraining"),
		scheduler.WithTimeout(r.cfg.Timeout),
		scheduler.WithTrigger(r.trigger),
		scheduler.WithLogger(r.l),
	)
}

// RequestTraining schedules an extra run without blocking. Requests that
// arrive while one is pending are merged.
func (r *RetrainingLoop) RequestTraining(_ context.Context, reason string) error {
	select {
	case r.trigger <- struct{}{}:
		r.l.Info("training run requested", applogger.String("reason", reason))
	default:
	}
	return nil
}

// RunOnce performs one load, train, publish and reload pass.
func (r *RetrainingLoop) RunOnce(ctx context.Context) (*models.TrainingReport, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	start := time.Now()

	records, err := r.history.Load(ctx)
	if err != nil {
		r.metrics.RecordError(string(errs.KindDataUnavailable))
		return nil, errs.Wrap(errs.KindDataUnavailable, "retraining.load", err)
	}
	if len(records) < r.minSamples {
		r.l.Warn("not enough trade history to retrain",
			applogger.Int("records", len(records)),
			applogger.Int("required", r.minSamples))
		return nil, errs.Wrap(errs.KindInsufficientData, "retraining.load", errs.ErrInsufficientData).
			WithReason(fmt.Sprintf("%d records, need %d", len(records), r.minSamples))
	}

	examples := BuildExamples(records, len(r.trainer.Layout()))
	artifact, report, err := r.trainer.Retrain(ctx, examples)
	if err != nil {
		if !errs.IsKind(err, errs.KindInsufficientData) {
			r.metrics.RecordError("training")
		}
		return nil, err
	}
	report.RiskReward = model.DiscountedRiskReward(records, r.cfg.Discount)

	if err := r.store.Publish(ctx, artifact); err != nil {
		r.metrics.RecordError("artifact_publish")
		return nil, fmt.Errorf("publish artifact %s: %w", artifact.Version, err)
	}
	if err := r.trainer.Reload(ctx); err != nil {
		r.metrics.RecordError("model_reload")
		return nil, fmt.Errorf("reload artifact %s: %w", artifact.Version, err)
	}
	report.Duration = time.Since(start)

	r.remember(report)
	r.metrics.RecordTraining(report.Samples, report.Loss, report.Accuracy)
	r.metrics.RecordLatency("retraining", report.Duration.Seconds())
	r.l.Info("model retrained",
		applogger.String("version", report.Version),
		applogger.Int("samples", report.Samples),
		applogger.Bool("incremental", report.Incremental),
		applogger.Float64("loss", report.Loss),
		applogger.Float64("accuracy", report.Accuracy),
		applogger.Float64("loss_trend", report.LossTrend),
		applogger.Float64("risk_reward", report.RiskReward),
		applogger.Duration("duration_ms", report.Duration))

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.events.PublishEvent(ectx, models.EngineEvent{
		Type:    models.EventModelTrained,
		Payload: report,
	}); err != nil {
		r.l.Warn("training event not published", applogger.Error(err))
	}
	return &report, nil
}

// Reports returns recent training reports, oldest first.
func (r *RetrainingLoop) Reports() []models.TrainingReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.TrainingReport(nil), r.reports...)
}

// Trend is the change in final loss and accuracy across the report window.
func (r *RetrainingLoop) Trend() (loss, accuracy float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.reports) < 2 {
		return 0, 0
	}
	first, last := r.reports[0], r.reports[len(r.reports)-1]
	return last.Loss - first.Loss, last.Accuracy - first.Accuracy
}

func (r *RetrainingLoop) remember(rep models.TrainingReport) {
	rep.History = nil
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	if len(r.reports) > r.cfg.ReportWindow {
		r.reports = append(r.reports[:0:0], r.reports[len(r.reports)-r.cfg.ReportWindow:]...)
	}
}

// BuildExamples labels records by profit sign. Records written without a
// feature snapshot of the current width fall back to the legacy vector.
func BuildExamples(records []models.TradeRecord, dim int) []models.TrainingExample {
	out := make([]models.TrainingExample, 0, len(records))
	for _, rec := range records {
		features := rec.Features
		if len(features) != dim {
			features = models.LegacyFeatures(rec.MarketVolatility)
		}
		out = append(out, models.TrainingExample{
			Features: append([]float64(nil), features...),
			Label:    rec.Label(),
		})
	}
	return out
}
