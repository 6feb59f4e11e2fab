package hypertune

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//////
// Const, vars, types.
//////

// Goal determines the direction in which a search ranks trial results.
// It is fixed when a strategy is constructed and never changes afterwards.
type Goal string

const (
	// Minimize ranks lower metric scores as better (e.g. loss).
	Minimize Goal = "minimize"

	// Maximize ranks higher metric scores as better (e.g. accuracy).
	Maximize Goal = "maximize"
)

func (g Goal) valid() bool {
	return g == Minimize || g == Maximize
}

// ParameterType identifies the kind of values a tunable parameter takes.
type ParameterType string

const (
	// IntParameter is an integer parameter sampled from an inclusive range.
	IntParameter ParameterType = "int"

	// RealParameter is a floating-point parameter sampled from an inclusive
	// range, optionally in log space.
	RealParameter ParameterType = "real"

	// CategoryParameter is a parameter chosen from a fixed list of values.
	CategoryParameter ParameterType = "category"
)

// Space selects the spacing used when sampling or gridding a numeric
// parameter.
type Space string

const (
	// LinearSpace spaces values evenly between the bounds.
	LinearSpace Space = "linear"

	// LogSpace spaces values geometrically between the bounds. When a base
	// is declared the bounds are treated as exponents of that base.
	LogSpace Space = "log"
)

// Range holds the inclusive numeric bounds of a parameter. In YAML it is
// written as a two-element sequence, e.g. `range: [0.0001, 0.1]`.
type Range struct {
	Low  float64
	High float64
}

// UnmarshalYAML decodes a Range from a two-element sequence.
func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	var bounds []float64
	if err := value.Decode(&bounds); err != nil {
		return err
	}

	if len(bounds) != 2 {
		return fmt.Errorf("range must have exactly two elements, got %d", len(bounds))
	}

	r.Low, r.High = bounds[0], bounds[1]

	return nil
}

// MarshalYAML encodes a Range as a two-element sequence.
func (r Range) MarshalYAML() (interface{}, error) {
	return []float64{r.Low, r.High}, nil
}

// ParameterSpec declares one tunable parameter of the search space. A spec
// is immutable once declared; strategies only ever read it.
//
// Numeric parameters (int, real) use Range and optionally Steps, Space and
// Base. Categorical parameters use Values.
type ParameterSpec struct {
	// Type is the kind of parameter: int, real or category.
	Type ParameterType `yaml:"type"`

	// Range holds the inclusive low/high bounds for numeric parameters.
	Range Range `yaml:"range,omitempty"`

	// Values lists the candidates of a categorical parameter.
	Values []any `yaml:"values,omitempty"`

	// Steps is the number of grid points for numeric parameters. Zero means
	// the per-type default (high-low+1 for int, ceil(high-low+1) for real).
	Steps int `yaml:"steps,omitempty"`

	// Space selects linear or log spacing for numeric parameters. Empty
	// means linear.
	Space Space `yaml:"space,omitempty"`

	// Base, when set on a log-spaced parameter, makes the bounds exponents
	// of this base instead of literal values.
	Base float64 `yaml:"base,omitempty"`
}

// ParameterMapping maps dotted parameter names (e.g.
// "combiner.num_fc_layers") to concrete sampled values. Strategies produce
// mappings; parameter substitution consumes them.
type ParameterMapping map[string]any

// Observation pairs a sampled mapping with the metric score it obtained.
type Observation struct {
	Parameters  ParameterMapping
	MetricScore float64
}

// ModelDefinition is the nested model configuration a trial trains with.
// The conventional top-level sections are input_features, output_features,
// combiner, training and preprocessing.
type ModelDefinition map[string]any

// TrainingStats is the opaque training statistics blob returned by the
// training collaborator.
type TrainingStats map[string]any

// EvalStats maps output feature name to metric name to numeric score, as
// returned by the training collaborator.
type EvalStats map[string]map[string]float64

// TrialResult is the outcome of one train-and-evaluate run under one
// parameter mapping. It is immutable once created.
type TrialResult struct {
	// Parameters is the mapping this trial was run with.
	Parameters ParameterMapping

	// MetricScore is the extracted target metric. NaN when Err is set.
	MetricScore float64

	// TrainingStats holds the collaborator's training statistics.
	TrainingStats TrainingStats

	// EvalStats holds the collaborator's evaluation statistics.
	EvalStats EvalStats

	// Err records the trial failure when the executor runs with failure
	// isolation enabled. Nil for successful trials.
	Err error
}

// ResultSet is the ranked outcome of a whole search run: every completed
// trial, stable-sorted by metric score in the direction of the goal.
type ResultSet []TrialResult

// Best returns the top-ranked result. It panics on an empty set.
func (rs ResultSet) Best() TrialResult {
	return rs[0]
}

//////
// Errors.
//////

// ErrExhausted is returned by Strategy.Sample once no further
// configurations can be proposed. Check with errors.Is.
var ErrExhausted = errors.New("strategy exhausted: no further configurations to sample")

// ConfigurationError reports an invalid search configuration: an unknown
// parameter type, spacing mode, strategy or executor type, or a malformed
// spec. It always fails at build time, never silently defaults. Check with
// errors.As.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

func newConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
