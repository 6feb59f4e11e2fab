package hypertune

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//////
// Search definition.
//
// The YAML-facing schema a whole search is declared with, plus the
// defaults merge: every unspecified option falls back to its documented
// default instead of failing or misbehaving.
//////

// Default targets of a search when the definition leaves them out.
const (
	// CombinedFeature is the synthetic output feature aggregating all of
	// a model's outputs.
	CombinedFeature = "combined"

	// LossMetric is the default metric to optimize.
	LossMetric = "loss"
)

// SearchDefinition declares a whole hyperparameter search: the parameter
// space, the optimization target, and the strategy and executor options.
type SearchDefinition struct {
	// Parameters maps dotted parameter names to their specs.
	Parameters map[string]ParameterSpec `yaml:"parameters"`

	// Goal is the ranking direction. Default minimize.
	Goal Goal `yaml:"goal,omitempty"`

	// OutputFeature and Metric locate the target score in the evaluation
	// statistics. Defaults: combined, loss.
	OutputFeature string `yaml:"output_feature,omitempty"`
	Metric        string `yaml:"metric,omitempty"`

	// Split is the dataset split the metric is computed on. Default
	// validation.
	Split Split `yaml:"split,omitempty"`

	// Strategy and Executor select and configure the search strategy and
	// the execution model. Defaults: random strategy, serial executor.
	Strategy StrategyOptions `yaml:"strategy,omitempty"`
	Executor ExecutorOptions `yaml:"executor,omitempty"`
}

// ParseSearchDefinition decodes a YAML search definition and merges in the
// defaults for everything left unspecified.
func ParseSearchDefinition(data []byte) (*SearchDefinition, error) {
	var def SearchDefinition

	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing search definition: %w", err)
	}

	if len(def.Parameters) == 0 {
		return nil, newConfigurationError("search definition declares no parameters")
	}

	def.applyDefaults()

	return &def, nil
}

// applyDefaults fills every unspecified top-level option with its
// documented default. Strategy- and executor-specific option defaults are
// applied by their factories.
func (d *SearchDefinition) applyDefaults() {
	if d.Goal == "" {
		d.Goal = Minimize
	}

	if d.OutputFeature == "" {
		d.OutputFeature = CombinedFeature
	}

	if d.Metric == "" {
		d.Metric = LossMetric
	}

	if d.Split == "" {
		d.Split = ValidationSplit
	}

	if d.Strategy.Type == "" {
		d.Strategy.Type = "random"
	}

	if d.Executor.Type == "" {
		d.Executor.Type = "serial"
	}
}

// Build wires the declared strategy and executor together: the convenience
// entry point for callers driving a search from a definition. The train
// function (or remote pool, for a distributed executor) and logger are
// runtime collaborators and so are passed here rather than declared in
// YAML.
func (d *SearchDefinition) Build(train TrainFunc, pool RemotePool, logger *zap.Logger) (Executor, error) {
	d.applyDefaults()

	strategy, err := NewStrategy(d.Strategy.Type, d.Parameters, d.Goal, d.Strategy)
	if err != nil {
		return nil, err
	}

	opts := d.Executor
	opts.Train = train
	opts.Pool = pool
	opts.Logger = logger

	return NewExecutor(opts.Type, strategy, d.OutputFeature, d.Metric, d.Split, opts)
}
