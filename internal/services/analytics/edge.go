package analytics

import (
	"context"
	"fmt"
	"time"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
)

// HTTPEdgeScorer asks the prior-model service for the probability of an up move.
type HTTPEdgeScorer struct {
	base     *HTTPServiceBase
	attempts int
}

func NewHTTPEdgeScorer(baseURL string, timeout time.Duration, attempts int) *HTTPEdgeScorer {
	return &HTTPEdgeScorer{base: NewHTTPServiceBase(baseURL, timeout), attempts: attempts}
}

type edgeReq struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	Horizon  string             `json:"horizon"`
}

type edgeResp struct {
	ProbaUp    float64 `json:"proba_up"`
	Regime     string  `json:"regime"`
	Sigma      float64 `json:"sigma"`
	Confidence float64 `json:"confidence"`
}

func (s *HTTPEdgeScorer) Predict(ctx context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error) {
	var er edgeResp
	err := s.base.PostJSONWithRetry(ctx, "/edge/predict", edgeReq{Symbol: symbol, Features: features, Horizon: horizon}, &er, s.attempts)
	if err != nil {
		return models.EdgeScore{}, fmt.Errorf("post edge: %w", err)
	}
	return models.EdgeScore{
		Symbol:     symbol,
		Timestamp:  time.Now(),
		Horizon:    horizon,
		ProbaUp:    er.ProbaUp,
		Regime:     er.Regime,
		Sigma:      er.Sigma,
		Confidence: er.Confidence,
	}, nil
}

var _ domsvc.EdgeScorer = (*HTTPEdgeScorer)(nil)
