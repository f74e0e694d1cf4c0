package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinTrade/pkg/cache"
)

// SentimentSource scores news sentiment for a symbol through the analytics
// service. Scores are clipped to [-1, 1] and cached for ttl.
type SentimentSource struct {
	base     *HTTPServiceBase
	cache    cache.Service
	ttl      time.Duration
	attempts int
}

func NewSentimentSource(baseURL string, timeout time.Duration, attempts int, c cache.Service, ttl time.Duration) *SentimentSource {
	return &SentimentSource{
		base:     NewHTTPServiceBase(baseURL, timeout),
		cache:    c,
		ttl:      ttl,
		attempts: attempts,
	}
}

type sentimentReq struct {
	Symbol string `json:"symbol"`
}

type sentimentResp struct {
	Score     float64 `json:"score"`
	Headlines int     `json:"headlines"`
}

func (s *SentimentSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	if s.cache == nil || s.ttl <= 0 {
		return s.score(ctx, symbol)
	}
	return cache.Remember(ctx, s.cache, "sentiment:"+symbol, s.ttl, func(ctx context.Context) (float64, error) {
		return s.score(ctx, symbol)
	})
}

func (s *SentimentSource) score(ctx context.Context, symbol string) (float64, error) {
	var resp sentimentResp
	if err := s.base.PostJSONWithRetry(ctx, "/sentiment/score", sentimentReq{Symbol: symbol}, &resp, s.attempts); err != nil {
		return 0, fmt.Errorf("post sentiment: %w", err)
	}
	if math.IsNaN(resp.Score) || math.IsInf(resp.Score, 0) {
		return 0, fmt.Errorf("sentiment score not finite")
	}
	return math.Max(-1, math.Min(1, resp.Score)), nil
}
