package hypertune

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianProcessEmptyPrediction(t *testing.T) {
	gp := newGaussianProcess()

	mean, variance := gp.Predict([]float64{0.5, 0.5})

	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, variance)
}

func TestGaussianProcessPredictsAtObservedPoint(t *testing.T) {
	gp := newGaussianProcess()
	gp.Update([]float64{0.5}, 2.0)

	mean, variance := gp.Predict([]float64{0.5})

	// The kernel is 1 at the observed point, so the weighted mean is the
	// observed value and the uncertainty collapses.
	assert.InDelta(t, 2.0, mean, 1e-9)
	assert.InDelta(t, 0.0, variance, 1e-9)
}

func TestGaussianProcessUncertaintyGrowsWithDistance(t *testing.T) {
	gp := newGaussianProcess()
	gp.Update([]float64{0.0}, 1.0)

	_, near := gp.Predict([]float64{0.1})
	_, far := gp.Predict([]float64{5.0})

	assert.Less(t, near, far)
	assert.InDelta(t, 1.0, far, 1e-6)
}

func TestGaussianProcessCopiesInput(t *testing.T) {
	gp := newGaussianProcess()

	point := []float64{0.3}
	gp.Update(point, 1.5)
	point[0] = 0.9

	mean, _ := gp.Predict([]float64{0.3})
	assert.InDelta(t, 1.5, mean, 1e-9)
}

func TestUCB(t *testing.T) {
	score := UCB(1.0, 4.0, AcquisitionParams{Beta: 2.0})

	// mean - beta*stddev = 1 - 2*2.
	assert.InDelta(t, -3.0, score, 1e-12)
}

func TestProbabilityOfImprovementIsAProbability(t *testing.T) {
	params := AcquisitionParams{Xi: 0.01, BestSoFar: 0.5}

	for _, mean := range []float64{-10, -1, 0, 0.5, 1, 10} {
		score := ProbabilityOfImprovement(mean, 1.0, params)

		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestExpectedImprovementPrefersLowerMean(t *testing.T) {
	params := AcquisitionParams{Xi: 0.01, BestSoFar: 1.0}

	better := ExpectedImprovement(0.0, 1.0, params)
	worse := ExpectedImprovement(2.0, 1.0, params)

	assert.Less(t, better, worse)
}

func TestThompsonSamplingIsDeterministicPerState(t *testing.T) {
	a := ThompsonSampling(0.0, 1.0, AcquisitionParams{RandomState: rand.New(rand.NewSource(3))})
	b := ThompsonSampling(0.0, 1.0, AcquisitionParams{RandomState: rand.New(rand.NewSource(3))})

	assert.Equal(t, a, b)
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(0), 1e-12)
	assert.InDelta(t, 1.0, normalCDF(10), 1e-9)
	assert.InDelta(t, 0.0, normalCDF(-10), 1e-9)
}

func TestSurrogateStrategyBudget(t *testing.T) {
	strategy, err := NewStrategy("surrogate", testParameters(), Minimize, StrategyOptions{
		NumSamples: 3,
		Seed:       11,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, strategy.Finished())

		sample, err := strategy.Sample()
		require.NoError(t, err)

		batchSize := sample["training.batch_size"].(int)
		assert.GreaterOrEqual(t, batchSize, 32)
		assert.LessOrEqual(t, batchSize, 128)

		strategy.Update(sample, float64(i))
	}

	assert.True(t, strategy.Finished())

	_, err = strategy.Sample()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSurrogateStrategyUnknownAcquisition(t *testing.T) {
	_, err := NewStrategy("surrogate", testParameters(), Minimize, StrategyOptions{
		Acquisition: "gradient_descent",
	})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestSurrogateStrategyConcentratesNearGoodObservations(t *testing.T) {
	parameters := map[string]ParameterSpec{
		"x": {Type: RealParameter, Range: Range{Low: 0, High: 1}},
	}

	surrogate, err := newSurrogateStrategy(Minimize, parameters, StrategyOptions{
		NumSamples: 100,
		Seed:       5,
		Beta:       0.1,
	})
	require.NoError(t, err)

	// Teach the model that low x scores well and high x scores badly.
	for i := 0; i < 20; i++ {
		sample, err := surrogate.Sample()
		require.NoError(t, err)

		x := sample["x"].(float64)
		surrogate.Update(sample, x)
	}

	// With a mostly exploiting acquisition, later proposals should favor
	// the low end on average.
	var sum float64

	const draws = 20
	for i := 0; i < draws; i++ {
		sample, err := surrogate.Sample()
		require.NoError(t, err)

		sum += sample["x"].(float64)
	}

	assert.Less(t, sum/draws, 0.5)
}

func TestSurrogateMaximizeNegatesObservations(t *testing.T) {
	parameters := map[string]ParameterSpec{
		"x": {Type: RealParameter, Range: Range{Low: 0, High: 1}},
	}

	strategy, err := newSurrogateStrategy(Maximize, parameters, StrategyOptions{
		NumSamples: 10,
		Seed:       9,
	})
	require.NoError(t, err)

	sample, err := strategy.Sample()
	require.NoError(t, err)

	strategy.Update(sample, 3.0)

	// The internal frame minimizes, so a maximization score is stored
	// negated.
	surrogate := strategy.(*SurrogateStrategy)
	require.Len(t, surrogate.optimizer.gp.Y, 1)
	assert.Equal(t, -3.0, surrogate.optimizer.gp.Y[0])
	assert.Equal(t, -3.0, surrogate.optimizer.acqParams.BestSoFar)
	assert.False(t, math.IsNaN(surrogate.optimizer.acqParams.BestSoFar))
}
