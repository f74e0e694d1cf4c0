package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	applogger "FinTrade/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// FeatureSource produces one numeric feature for a symbol.
type FeatureSource interface {
	Fetch(ctx context.Context, symbol string) (float64, error)
}

// SourceFunc adapts a function to FeatureSource.
type SourceFunc func(ctx context.Context, symbol string) (float64, error)

func (f SourceFunc) Fetch(ctx context.Context, symbol string) (float64, error) { return f(ctx, symbol) }

// FeatureSpec binds a named feature to its source and fallback value.
// A nil Source always falls back.
type FeatureSpec struct {
	Name    string
	Source  FeatureSource
	Default float64
}

// FeatureDefaults are the neutral values substituted for failed sources.
var FeatureDefaults = map[string]float64{
	models.FeatureOrderFlow:  0.0,
	models.FeatureSentiment:  0.0,
	models.FeatureInsight:    0.5,
	models.FeatureVolatility: 0.0,
	models.FeatureRiskFactor: 1.0,
}

// DefaultFeatureSpecs builds the deployed layout from its five sources.
func DefaultFeatureSpecs(orderFlow, sentiment, insight, volatility, riskFactor FeatureSource) []FeatureSpec {
	sources := map[string]FeatureSource{
		models.FeatureOrderFlow:  orderFlow,
		models.FeatureSentiment:  sentiment,
		models.FeatureInsight:    insight,
		models.FeatureVolatility: volatility,
		models.FeatureRiskFactor: riskFactor,
	}
	specs := make([]FeatureSpec, 0, len(models.DefaultFeatureOrder))
	for _, name := range models.DefaultFeatureOrder {
		specs = append(specs, FeatureSpec{Name: name, Source: sources[name], Default: FeatureDefaults[name]})
	}
	return specs
}

// FeatureAggregator fans out to every source of a fixed layout and merges
// the results into one FeatureVector.
type FeatureAggregator struct {
	specs   []FeatureSpec
	layout  []string
	timeout time.Duration
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewFeatureAggregator(specs []FeatureSpec, timeout time.Duration, metrics domrepo.Metrics, l *applogger.Logger) (*FeatureAggregator, error) {
	if len(specs) == 0 {
		return nil, errs.New(errs.KindConfig, "features.new", "no feature sources")
	}
	seen := make(map[string]bool, len(specs))
	layout := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.Name == "" || seen[s.Name] {
			return nil, errs.New(errs.KindConfig, "features.new", fmt.Sprintf("invalid or duplicate feature name %q", s.Name))
		}
		seen[s.Name] = true
		layout = append(layout, s.Name)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FeatureAggregator{specs: specs, layout: layout, timeout: timeout, metrics: metrics, l: l.Named("features")}, nil
}

// Layout returns the feature names in vector order.
func (a *FeatureAggregator) Layout() []string {
	out := make([]string, len(a.layout))
	copy(out, a.layout)
	return out
}

// Collect queries all sources concurrently, each bounded by the call timeout.
// Failed, timed out or non-finite fetches take their default and are listed
// in Missing. When every source failed the vector is returned together with
// a data_unavailable error.
func (a *FeatureAggregator) Collect(ctx context.Context, symbol string) (models.FeatureVector, error) {
	start := time.Now()
	values := make([]float64, len(a.specs))
	failures := make([]error, len(a.specs))

	var g errgroup.Group
	for i, spec := range a.specs {
		g.Go(func() error {
			v, err := a.fetch(ctx, spec, symbol)
			values[i], failures[i] = v, err
			return nil
		})
	}
	_ = g.Wait()

	fv := models.FeatureVector{
		Symbol:      symbol,
		Names:       a.Layout(),
		Values:      values,
		CollectedAt: time.Now().UTC(),
	}
	for i, err := range failures {
		if err == nil {
			continue
		}
		spec := a.specs[i]
		fv.Values[i] = spec.Default
		fv.Missing = append(fv.Missing, spec.Name)
		a.metrics.RecordFeatureDefault(spec.Name)
		a.l.Warn("feature source failed, using default",
			applogger.String("symbol", symbol),
			applogger.String("op", "features.collect"),
			applogger.String("kind", string(errs.KindDataUnavailable)),
			applogger.String("feature", spec.Name),
			applogger.Float64("default", spec.Default),
			applogger.String("reason", err.Error()))
	}
	a.metrics.RecordLatency("features.collect", time.Since(start).Seconds())

	if len(fv.Missing) == len(a.specs) {
		a.metrics.RecordError(string(errs.KindDataUnavailable))
		return fv, errs.Wrap(errs.KindDataUnavailable, "features.collect", errs.ErrNoMarketData).WithSymbol(symbol)
	}
	return fv, nil
}

func (a *FeatureAggregator) fetch(ctx context.Context, spec FeatureSpec, symbol string) (v float64, err error) {
	if spec.Source == nil {
		return 0, fmt.Errorf("source not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panic: %v", r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	v, err = spec.Source.Fetch(cctx, symbol)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %v", v)
	}
	return v, nil
}
