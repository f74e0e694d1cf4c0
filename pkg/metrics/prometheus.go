package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions       *prometheus.CounterVec
	confidence      *prometheus.GaugeVec
	riskRejections  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	bridgeCalls     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	featureDefaults *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	trainingRuns    prometheus.Counter
	trainingSamples prometheus.Gauge
	trainingLoss    prometheus.Gauge
	trainingAcc     prometheus.Gauge
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_decisions_total",
				Help: "Decisions taken per symbol and action",
			},
			[]string{"symbol", "action"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_confidence",
				Help: "Last confidence score per symbol",
			},
			[]string{"symbol"},
		),
		riskRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_risk_rejections_total",
				Help: "Trades rejected by the risk sizer",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrade_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		bridgeCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_bridge_calls_total",
				Help: "Mutating calls sent to the execution bridge",
			},
			[]string{"action", "result"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_ticket_transitions_total",
				Help: "Ticket lifecycle transitions by target state",
			},
			[]string{"state"},
		),
		featureDefaults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_feature_defaults_total",
				Help: "Feature fetches replaced by their default",
			},
			[]string{"feature"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		trainingRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "fintrade_training_runs_total",
			Help: "Completed retraining runs",
		}),
		trainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "fintrade_training_samples",
			Help: "Samples used by the last retraining run",
		}),
		trainingLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "fintrade_training_loss",
			Help: "Final loss of the last retraining run",
		}),
		trainingAcc: f.NewGauge(prometheus.GaugeOpts{
			Name: "fintrade_training_accuracy",
			Help: "Final accuracy of the last retraining run",
		}),
	}
}

func (r *Recorder) RecordDecision(symbol, action string) {
	r.decisions.WithLabelValues(symbol, action).Inc()
}

func (r *Recorder) RecordConfidence(symbol string, score float64) {
	r.confidence.WithLabelValues(symbol).Set(score)
}

func (r *Recorder) RecordRiskRejection(reason string) {
	r.riskRejections.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBridgeCall(action, result string) {
	r.bridgeCalls.WithLabelValues(action, result).Inc()
}

func (r *Recorder) RecordTransition(state string) {
	r.transitions.WithLabelValues(state).Inc()
}

func (r *Recorder) RecordTraining(samples int, loss, accuracy float64) {
	r.trainingRuns.Inc()
	r.trainingSamples.Set(float64(samples))
	r.trainingLoss.Set(loss)
	r.trainingAcc.Set(accuracy)
}

func (r *Recorder) RecordFeatureDefault(feature string) {
	r.featureDefaults.WithLabelValues(feature).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
