package hypertune

import (
	"errors"
	"sort"
	"strings"
)

//////
// Search strategy contract.
//////

// Strategy decides which parameter configurations to try next. Grid and
// random strategies are stateless with respect to observations; the
// surrogate strategy incorporates every observation into its model.
//
// A strategy's goal is fixed at construction and never changes.
type Strategy interface {
	// Sample proposes one parameter mapping. Once no further
	// configurations can be proposed it fails with ErrExhausted.
	Sample() (ParameterMapping, error)

	// SampleBatch calls Sample up to batchSize times. When exhaustion
	// occurs mid-batch the partial batch collected so far is returned
	// silently; only when the very first call is already exhausted does
	// the batch call itself fail with ErrExhausted. Callers detect the
	// end of the search via Finished.
	SampleBatch(batchSize int) ([]ParameterMapping, error)

	// Update incorporates one observed metric score. It is a no-op for
	// strategies whose proposals do not depend on observations.
	Update(parameters ParameterMapping, metricScore float64)

	// UpdateBatch applies multiple observations in order.
	UpdateBatch(observations []Observation)

	// Finished reports whether no more configurations remain.
	Finished() bool

	// Goal returns the search direction the strategy was built with.
	Goal() Goal
}

// StrategyOptions is the declared schema of recognized strategy options.
// Unset fields fall back to the per-type defaults applied by NewStrategy.
type StrategyOptions struct {
	// Type selects the strategy: grid, random or surrogate.
	Type string `yaml:"type"`

	// NumSamples is the total number of proposals for the random and
	// surrogate strategies. Defaults to 10.
	NumSamples int `yaml:"num_samples,omitempty"`

	// Seed seeds the random generator of the random and surrogate
	// strategies. Zero means a time-based seed.
	Seed int64 `yaml:"seed,omitempty"`

	// NumCandidates is how many random candidates the surrogate strategy
	// scores per proposal. Defaults to 50.
	NumCandidates int `yaml:"num_candidates,omitempty"`

	// Acquisition names the surrogate acquisition function: ucb,
	// probability_of_improvement, expected_improvement or
	// thompson_sampling. Defaults to ucb.
	Acquisition string `yaml:"acquisition,omitempty"`

	// Beta is the exploration weight of the ucb acquisition function.
	// Defaults to 2.0.
	Beta float64 `yaml:"beta,omitempty"`

	// Xi is the minimum-improvement margin of the probability_of_improvement
	// and expected_improvement acquisition functions. Defaults to 0.01.
	Xi float64 `yaml:"xi,omitempty"`
}

// strategyConstructor builds one strategy variant from validated inputs.
type strategyConstructor func(goal Goal, parameters map[string]ParameterSpec, opts StrategyOptions) (Strategy, error)

// strategyRegistry resolves a strategy type name to its constructor.
var strategyRegistry = map[string]strategyConstructor{
	"grid":      newGridStrategy,
	"random":    newRandomStrategy,
	"surrogate": newSurrogateStrategy,
}

// NewStrategy builds the named strategy over the given parameter specs.
// Unknown strategy types and invalid goals fail with a ConfigurationError.
func NewStrategy(strategyType string, parameters map[string]ParameterSpec, goal Goal, opts StrategyOptions) (Strategy, error) {
	if !goal.valid() {
		return nil, newConfigurationError("unknown goal %q, available ones are: %s, %s", goal, Minimize, Maximize)
	}

	ctor, ok := strategyRegistry[strategyType]
	if !ok {
		return nil, newConfigurationError(
			"unknown strategy type %q, available ones are: %s",
			strategyType, strings.Join(registeredStrategyTypes(), ", "),
		)
	}

	if opts.NumSamples == 0 {
		opts.NumSamples = defaultNumSamples
	}

	return ctor(goal, parameters, opts)
}

// registeredStrategyTypes returns the registered type names, sorted.
func registeredStrategyTypes() []string {
	names := make([]string, 0, len(strategyRegistry))
	for name := range strategyRegistry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// defaultNumSamples is the proposal budget used when none is declared.
const defaultNumSamples = 10

//////
// Shared strategy plumbing.
//////

// strategyBase carries the state every strategy variant shares.
type strategyBase struct {
	goal       Goal
	parameters map[string]ParameterSpec
}

func (b *strategyBase) Goal() Goal {
	return b.goal
}

// collectBatch implements the shared SampleBatch contract on top of a
// variant's Sample: stop at the first exhaustion, return the partial batch
// silently unless even the first draw was exhausted.
func collectBatch(sample func() (ParameterMapping, error), batchSize int) ([]ParameterMapping, error) {
	samples := make([]ParameterMapping, 0, batchSize)

	for i := 0; i < batchSize; i++ {
		s, err := sample()
		if err != nil {
			if errors.Is(err, ErrExhausted) && len(samples) > 0 {
				return samples, nil
			}

			return nil, err
		}

		samples = append(samples, s)
	}

	return samples, nil
}
