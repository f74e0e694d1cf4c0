package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderFlowSource reads the venue depth book and reports the volume
// imbalance (bid-ask)/(bid+ask) over the top levels, in [-1, 1].
type OrderFlowSource struct {
	base      *HTTPServiceBase
	limit     int
	symbolMap map[string]string
}

func NewOrderFlowSource(depthURL string, timeout time.Duration, limit int, symbolMap map[string]string) *OrderFlowSource {
	if limit <= 0 {
		limit = 10
	}
	return &OrderFlowSource{
		base:      NewHTTPServiceBase(depthURL, timeout),
		limit:     limit,
		symbolMap: symbolMap,
	}
}

type depthResponse struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (s *OrderFlowSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	venue, ok := s.symbolMap[symbol]
	if !ok {
		return 0, fmt.Errorf("no venue symbol mapped for %s", symbol)
	}

	var depth depthResponse
	err := s.base.GetJSON(ctx, "", map[string][]string{
		"symbol": {venue},
		"limit":  {strconv.Itoa(s.limit)},
	}, &depth)
	if err != nil {
		return 0, err
	}

	bid, err := sumVolume(depth.Bids, s.limit)
	if err != nil {
		return 0, fmt.Errorf("bids: %w", err)
	}
	ask, err := sumVolume(depth.Asks, s.limit)
	if err != nil {
		return 0, fmt.Errorf("asks: %w", err)
	}
	return Imbalance(bid, ask)
}

// Imbalance is (bid-ask)/(bid+ask). An empty book is an error.
func Imbalance(bid, ask decimal.Decimal) (float64, error) {
	total := bid.Add(ask)
	if !total.IsPositive() {
		return 0, fmt.Errorf("order book is empty")
	}
	v, _ := bid.Sub(ask).Div(total).Round(4).Float64()
	return v, nil
}

func sumVolume(levels [][]string, limit int) (decimal.Decimal, error) {
	sum := decimal.Zero
	for i, lvl := range levels {
		if i >= limit {
			break
		}
		if len(lvl) < 2 {
			return sum, fmt.Errorf("malformed level %v", lvl)
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return sum, fmt.Errorf("parse quantity %q: %w", lvl[1], err)
		}
		sum = sum.Add(qty)
	}
	return sum, nil
}
