package models

import "time"

// PredictorParams are the learned weights of the confidence predictor.
type PredictorParams struct {
	Kind     string    `json:"kind"`
	Features []string  `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Epochs   int       `json:"epochs"`
}

// ScalerParams are min/max scaling bounds fit on a training batch.
// They are valid only for the predictor they were fit with.
type ScalerParams struct {
	Features []string  `json:"features"`
	Min      []float64 `json:"min"`
	Max      []float64 `json:"max"`
}

// ModelArtifact is a (predictor, scaler) pair identified by its version.
type ModelArtifact struct {
	Version   string          `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Predictor PredictorParams `json:"predictor"`
	Scaler    ScalerParams    `json:"scaler"`
}

// TrainingExample is a labelled feature row.
type TrainingExample struct {
	Features []float64
	Label    int
}

// EpochStat is the loss and accuracy after one pass over the batch.
type EpochStat struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// TrainingReport summarises one retraining run.
type TrainingReport struct {
	Version           string             `json:"version"`
	Samples           int                `json:"samples"`
	Positives         int                `json:"positives"`
	Incremental       bool               `json:"incremental"`
	Epochs            int                `json:"epochs"`
	Loss              float64            `json:"loss"`
	Accuracy          float64            `json:"accuracy"`
	LossTrend         float64            `json:"loss_trend"`
	AccuracyTrend     float64            `json:"accuracy_trend"`
	History           []EpochStat        `json:"history,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	RiskReward        float64            `json:"risk_reward"`
	Duration          time.Duration      `json:"duration"`
	TrainedAt         time.Time          `json:"trained_at"`
}

// Prediction is a confidence score in [0,1] for one feature vector.
type Prediction struct {
	Symbol    string  `json:"symbol"`
	Score     float64 `json:"score"`
	Version   string  `json:"version,omitempty"`
	ColdStart bool    `json:"cold_start"`
}
