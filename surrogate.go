package hypertune

import (
	"math"
	"math/rand"
)

//////
// Surrogate optimizer.
//
// An ask/tell wrapper around the Gaussian Process: suggest proposes the
// most promising of a batch of random candidates according to the
// acquisition function, observe feeds an evaluated point back into the
// model so it can influence subsequent proposals.
//////

// surrogateOptimizer suggests points in the unit hypercube and learns from
// observed values. It always minimizes; callers working toward a
// maximization goal negate values before observing them.
type surrogateOptimizer struct {
	gp            *gaussianProcess
	space         *searchSpace
	rng           *rand.Rand
	acquire       AcquisitionFunc
	acqParams     AcquisitionParams
	numCandidates int
}

func newSurrogateOptimizer(space *searchSpace, rng *rand.Rand, acquire AcquisitionFunc, numCandidates int, beta, xi float64) *surrogateOptimizer {
	return &surrogateOptimizer{
		gp:      newGaussianProcess(),
		space:   space,
		rng:     rng,
		acquire: acquire,
		acqParams: AcquisitionParams{
			Beta:        beta,
			Xi:          xi,
			BestSoFar:   math.MaxFloat64,
			RandomState: rng,
		},
		numCandidates: numCandidates,
	}
}

// suggest generates numCandidates random points, predicts each with the
// model, and returns the one the acquisition function scores as most
// promising. Before any observations the model predicts total uncertainty
// everywhere, so early suggestions are effectively random exploration.
func (o *surrogateOptimizer) suggest() ParameterMapping {
	var best []float64

	bestAcquisition := math.MaxFloat64

	for i := 0; i < o.numCandidates; i++ {
		candidate := o.space.sampleUnit(o.rng)

		mean, variance := o.gp.Predict(candidate)

		acquisition := o.acquire(mean, variance, o.acqParams)
		if acquisition < bestAcquisition || best == nil {
			bestAcquisition = acquisition
			best = candidate
		}
	}

	return o.space.mapping(best)
}

// observe incorporates one evaluated point into the model and refreshes
// the best-so-far value the acquisition functions compare against.
func (o *surrogateOptimizer) observe(parameters ParameterMapping, value float64) error {
	point, err := o.space.unit(parameters)
	if err != nil {
		return err
	}

	o.gp.Update(point, value)

	if value < o.acqParams.BestSoFar {
		o.acqParams.BestSoFar = value
	}

	return nil
}
