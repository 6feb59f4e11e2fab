package hypertune

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

//////
// Warped search space.
//
// Random draws and the surrogate model both operate on the unit hypercube:
// each parameter owns one dimension, warped according to its declared type
// and spacing. Points move between the cube and concrete parameter
// mappings through mapping (unwarp) and unit (warp).
//////

// searchSpace is the joint space of a set of parameter specs, with one
// unit-cube dimension per parameter. Dimensions are ordered by sorted
// parameter name so that draws are reproducible for a given seed.
type searchSpace struct {
	names []string
	specs []ParameterSpec
}

// newSearchSpace validates the specs and builds the joint space. It fails
// with a ConfigurationError on unknown parameter types, unknown spacing
// modes, empty categorical value lists, and non-positive bounds of
// log-spaced parameters without a base.
func newSearchSpace(parameters map[string]ParameterSpec) (*searchSpace, error) {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}

	sort.Strings(names)

	specs := make([]ParameterSpec, len(names))

	for i, name := range names {
		spec := parameters[name]

		switch spec.Type {
		case CategoryParameter:
			if len(spec.Values) == 0 {
				return nil, newConfigurationError("parameter %q declares no values", name)
			}
		case IntParameter, RealParameter:
			switch spec.Space {
			case LinearSpace, "":
			case LogSpace:
				if spec.Base <= 0 && (spec.Range.Low <= 0 || spec.Range.High <= 0) {
					return nil, newConfigurationError(
						"parameter %q: log space without a base requires positive bounds", name,
					)
				}
			default:
				return nil, newConfigurationError(
					"parameter %q: unknown space %q, available ones are: linear, log", name, spec.Space,
				)
			}
		default:
			return nil, newConfigurationError("unknown parameter type: %q", spec.Type)
		}

		specs[i] = spec
	}

	return &searchSpace{names: names, specs: specs}, nil
}

// sampleUnit draws one uniform point in the unit hypercube.
func (s *searchSpace) sampleUnit(rng *rand.Rand) []float64 {
	point := make([]float64, len(s.names))
	for i := range point {
		point[i] = rng.Float64()
	}

	return point
}

// mapping unwarps a unit point into a concrete parameter mapping: numeric
// dimensions are stretched to the declared bounds (geometrically for log
// spacing), integer dimensions are rounded, and categorical dimensions
// index into the declared values.
func (s *searchSpace) mapping(unit []float64) ParameterMapping {
	m := make(ParameterMapping, len(s.names))

	for i, name := range s.names {
		spec := s.specs[i]
		u := unit[i]

		switch spec.Type {
		case CategoryParameter:
			idx := int(u * float64(len(spec.Values)))
			if idx >= len(spec.Values) {
				idx = len(spec.Values) - 1
			}

			m[name] = spec.Values[idx]
		case IntParameter:
			lo, hi := valueBounds(spec)

			v := math.Round(numericValue(u, spec))
			v = math.Max(lo, math.Min(hi, v))

			m[name] = int(v)
		case RealParameter:
			m[name] = numericValue(u, spec)
		}
	}

	return m
}

// unit warps a parameter mapping back into unit-cube coordinates. It is
// the inverse of mapping up to integer rounding and categorical binning.
func (s *searchSpace) unit(m ParameterMapping) ([]float64, error) {
	point := make([]float64, len(s.names))

	for i, name := range s.names {
		spec := s.specs[i]

		value, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("mapping is missing parameter %q", name)
		}

		switch spec.Type {
		case CategoryParameter:
			idx := -1

			for j, candidate := range spec.Values {
				if candidate == value {
					idx = j

					break
				}
			}

			if idx < 0 {
				return nil, fmt.Errorf("parameter %q: value %v is not a declared candidate", name, value)
			}

			// Bin centers keep warp(unwarp(u)) inside the same bin.
			point[i] = (float64(idx) + 0.5) / float64(len(spec.Values))
		default:
			v, err := numericCast(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}

			point[i] = numericUnit(v, spec)
		}
	}

	return point, nil
}

//////
// Numeric warping helpers.
//////

// valueBounds returns the concrete value bounds of a numeric spec. With a
// log base the declared bounds are exponents and get expanded.
func valueBounds(spec ParameterSpec) (float64, float64) {
	if spec.Space == LogSpace && spec.Base > 0 {
		return math.Pow(spec.Base, spec.Range.Low), math.Pow(spec.Base, spec.Range.High)
	}

	return spec.Range.Low, spec.Range.High
}

// numericValue stretches a unit coordinate to the spec's bounds, linearly
// or geometrically depending on the declared spacing.
func numericValue(u float64, spec ParameterSpec) float64 {
	lo, hi := valueBounds(spec)

	if spec.Space == LogSpace {
		return math.Exp(math.Log(lo) + u*(math.Log(hi)-math.Log(lo)))
	}

	return lo + u*(hi-lo)
}

// numericUnit is the inverse of numericValue.
func numericUnit(v float64, spec ParameterSpec) float64 {
	lo, hi := valueBounds(spec)
	if lo == hi {
		return 0.5
	}

	if spec.Space == LogSpace {
		return (math.Log(v) - math.Log(lo)) / (math.Log(hi) - math.Log(lo))
	}

	return (v - lo) / (hi - lo)
}

// numericCast widens any sampled numeric value to float64.
func numericCast(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", value)
	}
}
