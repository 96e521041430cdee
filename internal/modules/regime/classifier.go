// Package regime scores current market stress from a multivariate distance
// over weekly returns. Classification is advisory and never fails a request.
package regime

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/pkg/formulas"
)

// Classification labels for the stress score.
const (
	ClassificationCalm      = "Calm"
	ClassificationChoppy    = "Choppy"
	ClassificationTurbulent = "Turbulent"
)

// Status is the market-regime read returned to callers.
type Status struct {
	Score          float64 `json:"score"`
	Classification string  `json:"message"`
	Color          string  `json:"color"`
}

// Classifier computes a Mahalanobis stress score of the latest weekly return
// against the historical weekly distribution.
type Classifier struct {
	calmMax   float64
	choppyMax float64
	log       zerolog.Logger
}

// NewClassifier creates a classifier with score thresholds (calm < choppy).
func NewClassifier(calmMax, choppyMax float64, log zerolog.Logger) *Classifier {
	return &Classifier{
		calmMax:   calmMax,
		choppyMax: choppyMax,
		log:       log.With().Str("component", "regime_classifier").Logger(),
	}
}

// Classify scores the market data. Any internal failure degrades to the
// neutral default rather than propagating an error.
func (c *Classifier) Classify(md *marketdata.MarketData) Status {
	status, err := c.classify(md)
	if err != nil {
		c.log.Warn().Err(err).Msg("Regime classification degraded to neutral default")
		return Status{Score: 0, Classification: ClassificationCalm, Color: "Unknown"}
	}
	return status
}

func (c *Classifier) classify(md *marketdata.MarketData) (Status, error) {
	returns, err := md.WeeklyReturns()
	if err != nil {
		// History too short for weekly resampling: use daily returns as-is.
		c.log.Debug().Err(err).Msg("Weekly resample unavailable, using daily returns")
		returns = md.Returns
	}

	n := len(md.Symbols)
	if n == 0 {
		return Status{}, fmt.Errorf("empty universe")
	}
	rows := len(returns[md.Symbols[0]])
	if rows < 2 {
		return Status{}, fmt.Errorf("insufficient observations for regime score: %d", rows)
	}

	mu := make([]float64, n)
	diff := make([]float64, n)
	for i, symbol := range md.Symbols {
		series := returns[symbol]
		mu[i] = formulas.Mean(series)
		diff[i] = series[len(series)-1] - mu[i]
	}

	cov := formulas.CovarianceMatrix(returns, md.Symbols, 1)

	// Plain inversion is unsafe under the high correlations typical of small
	// universes, so the quadratic form uses the Moore-Penrose pseudo-inverse.
	pinv, err := pseudoInverse(cov)
	if err != nil {
		return Status{}, fmt.Errorf("failed to pseudo-invert covariance: %w", err)
	}

	d := mat.NewVecDense(n, diff)
	var tmp mat.VecDense
	tmp.MulVec(pinv, d)
	score := mat.Dot(d, &tmp)

	// The pseudo-inverse is PSD only up to numerical tolerance.
	if score < 0 {
		score = 0
	}

	status := c.mapScore(score)

	c.log.Debug().
		Float64("score", score).
		Str("classification", status.Classification).
		Msg("Classified market regime")

	return status, nil
}

// mapScore translates a stress score into its classification band.
func (c *Classifier) mapScore(score float64) Status {
	status := Status{Score: score}
	switch {
	case score < c.calmMax:
		status.Classification = ClassificationCalm
		status.Color = "Green"
	case score < c.choppyMax:
		status.Classification = ClassificationChoppy
		status.Color = "Yellow"
	default:
		status.Classification = ClassificationTurbulent
		status.Color = "Red"
	}
	return status
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse via SVD, zeroing
// singular values below a relative tolerance.
func pseudoInverse(matrix [][]float64) (*mat.Dense, error) {
	n := len(matrix)
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}

	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		if len(matrix[i]) != n {
			return nil, fmt.Errorf("matrix is not square")
		}
		for j := 0; j < n; j++ {
			a.Set(i, j, matrix[i][j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.0
	if len(values) > 0 {
		tol = 1e-12 * float64(n) * values[0]
	}

	sigmaInv := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tol {
			sigmaInv.Set(i, i, 1/s)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(&v, sigmaInv)
	pinv.Mul(&tmp, u.T())

	return &pinv, nil
}
