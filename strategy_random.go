package hypertune

import (
	"math/rand"
	"time"
)

//////
// Random strategy.
//////

// RandomStrategy proposes a fixed number of independent uniform draws from
// the search space. Numeric parameters are drawn uniformly between their
// declared bounds in their declared spacing (log-spaced parameters are
// drawn in log coordinates and unwarped), categorical parameters uniformly
// among their declared values.
//
// Every draw is generated at construction time, so a given seed always
// yields the same sequence of proposals. Observations do not change its
// proposals.
type RandomStrategy struct {
	strategyBase

	samples      []ParameterMapping
	sampledSoFar int
}

// newRandomStrategy pre-generates opts.NumSamples draws. A zero seed falls
// back to the current time.
func newRandomStrategy(goal Goal, parameters map[string]ParameterSpec, opts StrategyOptions) (Strategy, error) {
	space, err := newSearchSpace(parameters)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	samples := make([]ParameterMapping, opts.NumSamples)
	for i := range samples {
		samples[i] = space.mapping(space.sampleUnit(rng))
	}

	return &RandomStrategy{
		strategyBase: strategyBase{goal: goal, parameters: parameters},
		samples:      samples,
	}, nil
}

// Sample returns the next pre-generated draw, or ErrExhausted once all
// draws are consumed.
func (s *RandomStrategy) Sample() (ParameterMapping, error) {
	if s.sampledSoFar >= len(s.samples) {
		return nil, ErrExhausted
	}

	sample := s.samples[s.sampledSoFar]
	s.sampledSoFar++

	return sample, nil
}

// SampleBatch proposes up to batchSize draws, returning a partial batch
// silently when the draws run out mid-batch.
func (s *RandomStrategy) SampleBatch(batchSize int) ([]ParameterMapping, error) {
	return collectBatch(s.Sample, batchSize)
}

// Update is a no-op: random draws do not depend on observations.
func (s *RandomStrategy) Update(ParameterMapping, float64) {}

// UpdateBatch is a no-op for the same reason as Update.
func (s *RandomStrategy) UpdateBatch([]Observation) {}

// Finished reports whether all pre-generated draws are consumed.
func (s *RandomStrategy) Finished() bool {
	return s.sampledSoFar >= len(s.samples)
}
