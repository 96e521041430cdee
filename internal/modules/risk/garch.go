package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/risklens/pkg/formulas"
)

const (
	garchIterations = 500 // NelderMead budget per fit
	minNu           = 2.05
	minObservations = 30
)

// garchFit holds a converged GJR-GARCH(1,1) model with Student-t
// innovations.
type garchFit struct {
	omega, alpha, gamma, beta float64
	nu                        float64
	forecastSigma             float64
}

// fitGJRGARCH estimates sigma2_t = omega + alpha*e2 + gamma*e2*I(e<0) +
// beta*sigma2 by maximum likelihood over a demeaned return series. The
// parameters are solved in an unconstrained transform space: omega, alpha,
// gamma, beta through exp for positivity and nu as 2 + exp(x) so the
// Student-t variance exists.
func fitGJRGARCH(series []float64) (*garchFit, error) {
	if len(series) < minObservations {
		return nil, fmt.Errorf("need at least %d observations, have %d", minObservations, len(series))
	}

	mean := formulas.Mean(series)
	eps := make([]float64, len(series))
	variance := 0.0
	for i, r := range series {
		eps[i] = r - mean
		variance += eps[i] * eps[i]
	}
	variance /= float64(len(eps))
	if variance <= 0 || math.IsNaN(variance) {
		return nil, fmt.Errorf("series has no variance")
	}

	// A large finite penalty keeps the simplex usable when a vertex lands
	// outside the stationary region.
	const penalized = 1e12
	negLL := func(x []float64) float64 {
		p, ok := decodeParams(x, variance)
		if !ok {
			return penalized
		}
		ll, ok := logLikelihood(eps, variance, p)
		if !ok {
			return penalized
		}
		return -ll
	}

	// Start from a mildly persistent parameterization.
	initial := encodeParams(0.05*variance, 0.05, 0.05, 0.80, 8.0)

	result, err := optimize.Minimize(
		optimize.Problem{Func: negLL},
		initial,
		&optimize.Settings{MajorIterations: garchIterations},
		&optimize.NelderMead{},
	)
	if err != nil {
		return nil, fmt.Errorf("garch solve: %w", err)
	}
	if math.IsNaN(result.F) || result.F >= penalized {
		return nil, fmt.Errorf("garch solve diverged")
	}

	p, ok := decodeParams(result.X, variance)
	if !ok {
		return nil, fmt.Errorf("garch solve left the stationary region")
	}

	forecast := forecastVariance(eps, variance, p)
	if forecast <= 0 || math.IsNaN(forecast) || math.IsInf(forecast, 0) {
		return nil, fmt.Errorf("garch forecast is not finite")
	}

	return &garchFit{
		omega:         p.omega,
		alpha:         p.alpha,
		gamma:         p.gamma,
		beta:          p.beta,
		nu:            p.nu,
		forecastSigma: math.Sqrt(forecast),
	}, nil
}

type garchParams struct {
	omega, alpha, gamma, beta, nu float64
}

func encodeParams(omega, alpha, gamma, beta, nu float64) []float64 {
	return []float64{
		math.Log(omega),
		math.Log(alpha),
		math.Log(gamma),
		math.Log(beta),
		math.Log(nu - 2.0),
	}
}

func decodeParams(x []float64, unconditional float64) (garchParams, bool) {
	p := garchParams{
		omega: math.Exp(x[0]),
		alpha: math.Exp(x[1]),
		gamma: math.Exp(x[2]),
		beta:  math.Exp(x[3]),
		nu:    2.0 + math.Exp(x[4]),
	}
	if math.IsNaN(p.omega) || math.IsInf(p.omega, 0) || p.nu > 200 {
		return p, false
	}
	if p.nu < minNu {
		p.nu = minNu
	}
	// Stationarity: alpha + beta + gamma/2 < 1.
	if p.alpha+p.beta+p.gamma/2.0 >= 0.9999 {
		return p, false
	}
	if p.omega > 100*unconditional {
		return p, false
	}
	return p, true
}

// logLikelihood evaluates the Student-t log likelihood of the residuals
// under the recursion, using the unit-variance standardized t density.
func logLikelihood(eps []float64, unconditional float64, p garchParams) (float64, bool) {
	logNorm := lgamma((p.nu+1)/2) - lgamma(p.nu/2) - 0.5*math.Log(math.Pi*(p.nu-2))

	sigma2 := unconditional
	ll := 0.0
	for _, e := range eps {
		if sigma2 <= 0 || math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
			return 0, false
		}
		z2 := e * e / sigma2
		ll += logNorm - 0.5*math.Log(sigma2) - (p.nu+1)/2*math.Log1p(z2/(p.nu-2))

		next := p.omega + p.alpha*e*e + p.beta*sigma2
		if e < 0 {
			next += p.gamma * e * e
		}
		sigma2 = next
	}
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return ll, true
}

// forecastVariance runs the recursion through the sample and returns the
// one-step-ahead conditional variance.
func forecastVariance(eps []float64, unconditional float64, p garchParams) float64 {
	sigma2 := unconditional
	for _, e := range eps {
		next := p.omega + p.alpha*e*e + p.beta*sigma2
		if e < 0 {
			next += p.gamma * e * e
		}
		sigma2 = next
	}
	return sigma2
}

// tailMetrics computes the 95% VaR and the closed-form Student-t expected
// shortfall for the forecast volatility.
func (f *garchFit) tailMetrics() (var95, es95 float64) {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: f.nu}
	q := dist.Quantile(0.05)
	var95 = math.Abs(f.forecastSigma * q)
	es95 = f.forecastSigma * ((f.nu + q*q) / (f.nu - 1)) * (dist.Prob(q) / 0.05)
	return var95, es95
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
