package hypertune

import (
	"math"
	"sync"
)

//////
// Gaussian Process surrogate model.
//////

// gaussianProcess is a thread-safe Gaussian Process regression model over
// multidimensional inputs. The surrogate strategy uses it to predict the
// metric score of untested parameter combinations from previously observed
// ones. Inputs are unit-cube coordinates, which keeps the default kernel
// width meaningful across parameters of very different scales.
//
// Memory grows linearly and prediction time quadratically with the number
// of observations; a search proposes a bounded number of trials, so both
// stay small in practice.
type gaussianProcess struct {
	// mu protects access to all fields.
	mu sync.RWMutex

	// X stores the observed input points, one unit-cube coordinate slice
	// per observation.
	X [][]float64

	// Y stores the observed values at each point in X. Same length as X.
	Y []float64

	// sigma is the RBF kernel width: larger values smooth the
	// interpolation, smaller values localize each observation's influence.
	sigma float64
}

// newGaussianProcess returns an empty model with a kernel width suited to
// normalized inputs.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{sigma: 1.0}
}

// kernel is the Radial Basis Function kernel: similarity between two
// points decaying exponentially with squared distance, 1.0 for identical
// points. Callers must hold at least a read lock.
func (gp *gaussianProcess) kernel(x1, x2 []float64) float64 {
	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]
		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// Predict estimates the value and uncertainty at a point from the observed
// data. The mean is a kernel-weighted average of observed values; the
// variance shrinks near observed points and approaches 1 far from them.
// With no observations it returns (0, 1): total uncertainty.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if len(gp.X) == 0 {
		return 0, 1
	}

	k := make([]float64, len(gp.X))
	for i := range gp.X {
		k[i] = gp.kernel(x, gp.X[i])
	}

	var sum float64
	for i := range gp.X {
		sum += k[i] * gp.Y[i]
	}

	mean = sum / float64(len(gp.X))

	variance = 1.0
	for i := range gp.X {
		for j := range gp.X {
			variance -= k[i] * k[j] / float64(len(gp.X))
		}
	}

	// The estimator undershoots in densely observed regions; a negative
	// variance would put NaN into every acquisition score.
	if variance < 0 {
		variance = 0
	}

	return mean, variance
}

// Update adds one observation to the model. The input point is copied so
// later external mutation cannot corrupt the training data.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	point := make([]float64, len(x))
	copy(point, x)

	gp.X = append(gp.X, point)
	gp.Y = append(gp.Y, y)
}
