package hypertune

import (
	"math/rand"
	"time"
)

//////
// Surrogate (Bayesian-style) strategy.
//////

// SurrogateStrategy proposes configurations through a surrogate optimizer:
// each Sample asks the optimizer to suggest one point, and each Update
// feeds an observed score back into its model so later proposals
// concentrate on promising regions.
//
// The strategy is finished after NumSamples total proposals regardless of
// how many observations were received; sampling past exhaustion fails
// with ErrExhausted rather than emitting a stale suggestion.
type SurrogateStrategy struct {
	strategyBase

	optimizer    *surrogateOptimizer
	numSamples   int
	sampledSoFar int
}

// Per-type option defaults for the surrogate strategy.
const (
	defaultNumCandidates = 50
	defaultBeta          = 2.0
	defaultXi            = 0.01
)

func newSurrogateStrategy(goal Goal, parameters map[string]ParameterSpec, opts StrategyOptions) (Strategy, error) {
	space, err := newSearchSpace(parameters)
	if err != nil {
		return nil, err
	}

	if opts.NumCandidates == 0 {
		opts.NumCandidates = defaultNumCandidates
	}

	if opts.Beta == 0 {
		opts.Beta = defaultBeta
	}

	if opts.Xi == 0 {
		opts.Xi = defaultXi
	}

	acquisition := opts.Acquisition
	if acquisition == "" {
		acquisition = "ucb"
	}

	acquire, ok := acquisitionRegistry[acquisition]
	if !ok {
		return nil, newConfigurationError("unknown acquisition function: %q", acquisition)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	return &SurrogateStrategy{
		strategyBase: strategyBase{goal: goal, parameters: parameters},
		optimizer:    newSurrogateOptimizer(space, rng, acquire, opts.NumCandidates, opts.Beta, opts.Xi),
		numSamples:   opts.NumSamples,
	}, nil
}

// Sample suggests one new point to be evaluated, or fails with
// ErrExhausted once the proposal budget is spent.
func (s *SurrogateStrategy) Sample() (ParameterMapping, error) {
	if s.sampledSoFar >= s.numSamples {
		return nil, ErrExhausted
	}

	s.sampledSoFar++

	return s.optimizer.suggest(), nil
}

// SampleBatch proposes up to batchSize points, returning a partial batch
// silently when the budget runs out mid-batch.
func (s *SurrogateStrategy) SampleBatch(batchSize int) ([]ParameterMapping, error) {
	return collectBatch(s.Sample, batchSize)
}

// Update feeds one observation into the surrogate model. Scores observed
// under a maximization goal are negated so the optimizer can keep
// minimizing internally. Observations for values outside the declared
// space are ignored rather than corrupting the model.
func (s *SurrogateStrategy) Update(parameters ParameterMapping, metricScore float64) {
	value := metricScore
	if s.goal == Maximize {
		value = -metricScore
	}

	// The only possible failure is a mapping not produced by this space.
	_ = s.optimizer.observe(parameters, value)
}

// UpdateBatch applies the observations in order.
func (s *SurrogateStrategy) UpdateBatch(observations []Observation) {
	for _, obs := range observations {
		s.Update(obs.Parameters, obs.MetricScore)
	}
}

// Finished reports whether the proposal budget is spent.
func (s *SurrogateStrategy) Finished() bool {
	return s.sampledSoFar >= s.numSamples
}
