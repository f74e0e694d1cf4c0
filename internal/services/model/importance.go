package model

import (
	"fmt"

	"FinTrade/internal/domain/models"

	randomforest "github.com/malaschitz/randomForest"
)

// FeatureImportance fits a random forest on the batch and returns the
// normalised importance of each named feature.
func FeatureImportance(features []string, x [][]float64, y []int, trees int) (imp map[string]float64, err error) {
	if trees <= 0 || len(x) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			imp, err = nil, fmt.Errorf("random forest: %v", r)
		}
	}()

	forest := randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: x, Class: y}
	forest.Train(trees)

	raw := forest.FeatureImportance
	var total float64
	for _, v := range raw {
		total += v
	}
	imp = make(map[string]float64, len(features))
	for i, name := range features {
		if i >= len(raw) {
			break
		}
		if total > 0 {
			imp[name] = raw[i] / total
		} else {
			imp[name] = 0
		}
	}
	return imp, nil
}

// DiscountedRiskReward scores a trade history with the most recent trade
// weighted 1 and older trades discounted by gamma per step. A winning trade
// contributes its profit, a losing one minus its stop-loss distance.
func DiscountedRiskReward(records []models.TradeRecord, gamma float64) float64 {
	if len(records) == 0 {
		return 0
	}
	var total, w float64 = 0, 1
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		reward := -r.StopLoss
		if r.Profit > 0 {
			reward = r.Profit
		}
		total += w * reward
		w *= gamma
	}
	return total / float64(len(records))
}
