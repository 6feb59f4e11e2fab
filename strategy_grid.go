package hypertune

import "sort"

//////
// Grid strategy.
//////

// GridStrategy enumerates the deterministic cross product of every
// parameter's grid candidates. Parameters are iterated in sorted-name
// order so results are reproducible across runs. Observations do not
// change its proposals: exploration is exhaustive and order-independent.
type GridStrategy struct {
	strategyBase

	samples      []ParameterMapping
	sampledSoFar int
}

// newGridStrategy precomputes the full cross product at construction time.
// Unknown parameter types or spacing modes fail with a ConfigurationError.
func newGridStrategy(goal Goal, parameters map[string]ParameterSpec, _ StrategyOptions) (Strategy, error) {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}

	sort.Strings(names)

	candidates := make([][]any, len(names))

	for i, name := range names {
		values, err := gridValues(parameters[name])
		if err != nil {
			return nil, err
		}

		candidates[i] = values
	}

	return &GridStrategy{
		strategyBase: strategyBase{goal: goal, parameters: parameters},
		samples:      crossProduct(names, candidates),
	}, nil
}

// crossProduct enumerates every combination of candidate values, with the
// first (alphabetically) parameter varying slowest.
func crossProduct(names []string, candidates [][]any) []ParameterMapping {
	total := 1
	for _, values := range candidates {
		total *= len(values)
	}

	if len(names) == 0 {
		return nil
	}

	samples := make([]ParameterMapping, 0, total)
	indices := make([]int, len(names))

	for i := 0; i < total; i++ {
		m := make(ParameterMapping, len(names))
		for j, name := range names {
			m[name] = candidates[j][indices[j]]
		}

		samples = append(samples, m)

		// Advance the odometer, last dimension fastest.
		for j := len(indices) - 1; j >= 0; j-- {
			indices[j]++
			if indices[j] < len(candidates[j]) {
				break
			}

			indices[j] = 0
		}
	}

	return samples
}

// Sample returns the next grid combination, or ErrExhausted once every
// combination has been proposed.
func (s *GridStrategy) Sample() (ParameterMapping, error) {
	if s.sampledSoFar >= len(s.samples) {
		return nil, ErrExhausted
	}

	sample := s.samples[s.sampledSoFar]
	s.sampledSoFar++

	return sample, nil
}

// SampleBatch proposes up to batchSize combinations, returning a partial
// batch silently when the grid runs out mid-batch.
func (s *GridStrategy) SampleBatch(batchSize int) ([]ParameterMapping, error) {
	return collectBatch(s.Sample, batchSize)
}

// Update is a no-op: grid exploration does not depend on observations.
func (s *GridStrategy) Update(ParameterMapping, float64) {}

// UpdateBatch is a no-op for the same reason as Update.
func (s *GridStrategy) UpdateBatch([]Observation) {}

// Finished reports whether every combination has been proposed.
func (s *GridStrategy) Finished() bool {
	return s.sampledSoFar >= len(s.samples)
}
