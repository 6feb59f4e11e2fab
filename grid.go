package hypertune

import (
	"math"

	"golang.org/x/exp/constraints"
)

//////
// Grid functions.
//
// Pure functions turning a ParameterSpec into the finite candidate list a
// grid search iterates over.
//////

// gridFunc maps a parameter spec to its finite list of candidate values.
type gridFunc func(spec ParameterSpec) ([]any, error)

// gridFunctionRegistry resolves a parameter type to its grid function.
var gridFunctionRegistry = map[ParameterType]gridFunc{
	IntParameter:      intGridValues,
	RealParameter:     realGridValues,
	CategoryParameter: categoryGridValues,
}

// gridValues dispatches to the grid function registered for the spec's
// type. Unknown types fail with a ConfigurationError.
func gridValues(spec ParameterSpec) ([]any, error) {
	fn, ok := gridFunctionRegistry[spec.Type]
	if !ok {
		return nil, newConfigurationError("unknown parameter type: %q", spec.Type)
	}

	return fn(spec)
}

// intGridValues produces evenly spaced integers between the spec's low and
// high bounds, inclusive. Steps defaults to high-low+1, which covers every
// integer in the range.
func intGridValues(spec ParameterSpec) ([]any, error) {
	low, high := spec.Range.Low, spec.Range.High

	steps := spec.Steps
	if steps == 0 {
		steps = int(high - low + 1)
	}

	values := make([]int, steps)
	for i, v := range linspace(low, high, steps) {
		values[i] = int(v)
	}

	return anyValues(values), nil
}

// realGridValues produces evenly or geometrically spaced reals between the
// spec's bounds, inclusive. Steps defaults to ceil(high-low+1). In log
// space with a declared base the bounds are exponents of that base;
// without a base the values themselves are spaced geometrically. Any other
// spacing mode fails with a ConfigurationError.
func realGridValues(spec ParameterSpec) ([]any, error) {
	low, high := spec.Range.Low, spec.Range.High

	steps := spec.Steps
	if steps == 0 {
		steps = int(math.Ceil(high - low + 1))
	}

	switch spec.Space {
	case LinearSpace, "":
		return anyValues(linspace(low, high, steps)), nil
	case LogSpace:
		if spec.Base > 0 {
			return anyValues(logspace(low, high, steps, spec.Base)), nil
		}

		if low <= 0 || high <= 0 {
			return nil, newConfigurationError(
				"log space without a base requires positive bounds, got [%v, %v]", low, high,
			)
		}

		return anyValues(geomspace(low, high, steps)), nil
	default:
		return nil, newConfigurationError(
			"unknown grid space %q, available ones are: linear, log", spec.Space,
		)
	}
}

// categoryGridValues is the identity: the declared values list, unchanged.
func categoryGridValues(spec ParameterSpec) ([]any, error) {
	return spec.Values, nil
}

//////
// Spacing helpers.
//////

// linspace returns steps evenly spaced values between low and high,
// inclusive of both endpoints. A single step yields just low.
func linspace(low, high float64, steps int) []float64 {
	if steps <= 1 {
		return []float64{low}
	}

	values := make([]float64, steps)
	delta := (high - low) / float64(steps-1)

	for i := range values {
		values[i] = low + float64(i)*delta
	}

	// Pin the endpoint so accumulated rounding never overshoots high.
	values[steps-1] = high

	return values
}

// logspace returns steps values base^x for x evenly spaced between the low
// and high exponents, inclusive.
func logspace(low, high float64, steps int, base float64) []float64 {
	exponents := linspace(low, high, steps)

	values := make([]float64, len(exponents))
	for i, e := range exponents {
		values[i] = math.Pow(base, e)
	}

	return values
}

// geomspace returns steps geometrically spaced values between low and
// high, inclusive. Bounds must be positive.
func geomspace(low, high float64, steps int) []float64 {
	exponents := linspace(math.Log(low), math.Log(high), steps)

	values := make([]float64, len(exponents))
	for i, e := range exponents {
		values[i] = math.Exp(e)
	}

	if steps > 1 {
		values[steps-1] = high
	}

	return values
}

// anyValues widens a typed candidate slice into the []any form parameter
// mappings carry.
func anyValues[T constraints.Integer | constraints.Float](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
