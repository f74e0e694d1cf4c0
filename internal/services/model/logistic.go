package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"FinTrade/internal/domain/models"

	"gonum.org/v1/gonum/mat"
)

const predictorKind = "logistic"

// TrainOptions control mini-batch gradient descent.
type TrainOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	L2           float64
	Seed         int64
}

// Logistic is an L2-regularised logistic regression over scaled features.
type Logistic struct {
	w *mat.VecDense
	b float64
}

func NewLogistic(dim int) *Logistic {
	return &Logistic{w: mat.NewVecDense(dim, nil)}
}

// LogisticFromParams restores a predictor from persisted weights.
func LogisticFromParams(p models.PredictorParams) (*Logistic, error) {
	if p.Kind != "" && p.Kind != predictorKind {
		return nil, fmt.Errorf("unsupported predictor kind %q", p.Kind)
	}
	if len(p.Weights) == 0 || len(p.Weights) != len(p.Features) {
		return nil, fmt.Errorf("predictor has %d weights for %d features", len(p.Weights), len(p.Features))
	}
	w := make([]float64, len(p.Weights))
	copy(w, p.Weights)
	return &Logistic{w: mat.NewVecDense(len(w), w), b: p.Bias}, nil
}

// Params exports the weights for persistence.
func (l *Logistic) Params(features []string, epochs int) models.PredictorParams {
	w := make([]float64, l.w.Len())
	for i := range w {
		w[i] = l.w.AtVec(i)
	}
	return models.PredictorParams{
		Kind:     predictorKind,
		Features: append([]string(nil), features...),
		Weights:  w,
		Bias:     l.b,
		Epochs:   epochs,
	}
}

func (l *Logistic) Dim() int { return l.w.Len() }

// Prob returns P(label=1) for a scaled row.
func (l *Logistic) Prob(x []float64) float64 {
	return sigmoid(mat.Dot(l.w, mat.NewVecDense(len(x), x)) + l.b)
}

// Fit runs opts.Epochs passes over (x, y) and returns per-epoch stats.
// Rows are visited in a seeded shuffled order so a fit is reproducible.
func (l *Logistic) Fit(ctx context.Context, x [][]float64, y []float64, opts TrainOptions) ([]models.EpochStat, error) {
	n, d := len(x), l.w.Len()
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("fit: %d rows and %d labels", n, len(y))
	}
	bs := opts.BatchSize
	if bs <= 0 || bs > n {
		bs = n
	}

	X := mat.NewDense(n, d, nil)
	for i, row := range x {
		if len(row) != d {
			return nil, fmt.Errorf("fit: row %d has %d values, want %d", i, len(row), d)
		}
		X.SetRow(i, row)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	hist := make([]models.EpochStat, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}
		perm := rng.Perm(n)
		for start := 0; start < n; start += bs {
			end := min(start+bs, n)
			l.step(X, y, perm[start:end], opts)
		}
		loss, acc := l.evaluate(X, y)
		hist = append(hist, models.EpochStat{Epoch: epoch, Loss: loss, Accuracy: acc})
	}
	return hist, nil
}

func (l *Logistic) step(X *mat.Dense, y []float64, rows []int, opts TrainOptions) {
	m, d := len(rows), l.w.Len()
	xb := mat.NewDense(m, d, nil)
	for k, r := range rows {
		xb.SetRow(k, X.RawRowView(r))
	}

	var z mat.VecDense
	z.MulVec(xb, l.w)

	diff := mat.NewVecDense(m, nil)
	var gb float64
	for k, r := range rows {
		e := sigmoid(z.AtVec(k)+l.b) - y[r]
		diff.SetVec(k, e)
		gb += e
	}

	var g mat.VecDense
	g.MulVec(xb.T(), diff)
	g.ScaleVec(1/float64(m), &g)
	g.AddScaledVec(&g, opts.L2, l.w)

	l.w.AddScaledVec(l.w, -opts.LearningRate, &g)
	l.b -= opts.LearningRate * gb / float64(m)
}

// evaluate returns binary cross-entropy and accuracy at a 0.5 cut.
func (l *Logistic) evaluate(X *mat.Dense, y []float64) (float64, float64) {
	var z mat.VecDense
	z.MulVec(X, l.w)

	const eps = 1e-12
	var loss float64
	correct := 0
	for i, yi := range y {
		p := sigmoid(z.AtVec(i) + l.b)
		p = math.Min(math.Max(p, eps), 1-eps)
		loss -= yi*math.Log(p) + (1-yi)*math.Log(1-p)
		if (p >= 0.5) == (yi >= 0.5) {
			correct++
		}
	}
	n := float64(len(y))
	return loss / n, float64(correct) / n
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
