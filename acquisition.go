package hypertune

import (
	"math"
	"math/rand"
)

//////
// Acquisition functions for the surrogate strategy.
//
// Each function scores how promising an untested point is, balancing
// exploration (uncertain areas) against exploitation (areas predicted to
// be good). Lower values indicate more promising points: the surrogate
// works in a minimizing frame internally and negates maximization scores
// on the way in.
//////

// AcquisitionFunc scores a candidate point from the surrogate model's
// predicted mean and variance. Lower is more promising.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds the knobs the built-in acquisition functions
// read. BestSoFar and RandomState are maintained by the surrogate
// optimizer; Beta and Xi come from the strategy options.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB. Higher
	// values favor uncertain areas. Typical range 0.1 to 5.0.
	Beta float64

	// Xi is the minimum-improvement margin used by
	// ProbabilityOfImprovement and ExpectedImprovement. Typical range
	// 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (lowest, in the internal minimizing frame)
	// observed value. Updated by the optimizer before each proposal.
	BestSoFar float64

	// RandomState is the generator ThompsonSampling draws from.
	RandomState *rand.Rand
}

// acquisitionRegistry resolves an acquisition name from strategy options.
var acquisitionRegistry = map[string]AcquisitionFunc{
	"ucb":                        UCB,
	"probability_of_improvement": ProbabilityOfImprovement,
	"expected_improvement":       ExpectedImprovement,
	"thompson_sampling":          ThompsonSampling,
}

// UCB is the Upper Confidence Bound acquisition function: the predicted
// mean lowered by Beta standard deviations. A robust general-purpose
// default.
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement scores a point by the probability (under a
// normal assumption) that it improves on the best observation by at least
// Xi. Conservative: favors small, reliable improvements.
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	z := (mean - params.BestSoFar - params.Xi) / math.Sqrt(variance)

	return normalCDF(z)
}

// ExpectedImprovement scores a point by the expected magnitude of its
// improvement over the best observation, combining how likely and how
// large the improvement might be.
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	z := (mean - params.BestSoFar - params.Xi) / sigma

	return (mean-params.BestSoFar-params.Xi)*normalCDF(z) + sigma*normalPDF(z)
}

// ThompsonSampling scores a point by drawing one sample from the posterior
// at that point. Requires a non-nil RandomState.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}

// normalCDF is the cumulative distribution function of the standard normal
// distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// normalPDF is the probability density function of the standard normal
// distribution.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}
