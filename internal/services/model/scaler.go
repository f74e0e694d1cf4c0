package model

import (
	"fmt"

	"FinTrade/internal/domain/models"

	"gonum.org/v1/gonum/floats"
)

// FitMinMax fits per-column bounds on a training batch.
func FitMinMax(features []string, rows [][]float64) (models.ScalerParams, error) {
	if len(rows) == 0 {
		return models.ScalerParams{}, fmt.Errorf("fit scaler: empty batch")
	}
	d := len(features)
	p := models.ScalerParams{
		Features: append([]string(nil), features...),
		Min:      make([]float64, d),
		Max:      make([]float64, d),
	}
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		for i, r := range rows {
			if len(r) != d {
				return models.ScalerParams{}, fmt.Errorf("fit scaler: row %d has %d values, want %d", i, len(r), d)
			}
			col[i] = r[j]
		}
		p.Min[j] = floats.Min(col)
		p.Max[j] = floats.Max(col)
	}
	return p, nil
}

// Scale maps a row into the fitted range. Constant columns map to 0.
// Values outside the fitted range are not clipped.
func Scale(p models.ScalerParams, row []float64) ([]float64, error) {
	if len(row) != len(p.Min) || len(p.Min) != len(p.Max) {
		return nil, fmt.Errorf("scale: got %d values for a %d-feature scaler", len(row), len(p.Min))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		span := p.Max[j] - p.Min[j]
		if span == 0 {
			continue
		}
		out[j] = (v - p.Min[j]) / span
	}
	return out, nil
}
