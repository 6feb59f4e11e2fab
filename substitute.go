package hypertune

import (
	"fmt"
	"strings"

	"github.com/mitchellh/copystructure"
)

//////
// Parameter substitution.
//
// A sampled mapping uses flat dotted paths ("training.batch_size",
// "combiner.num_fc_layers"). Substitution converts the flat mapping into a
// nested tree and merges each top-level section into the model definition:
// input and output features are matched by their declared name, the
// combiner, training and preprocessing sections by section name.
//////

// Top-level model definition sections substitution knows about.
const (
	inputFeaturesSection  = "input_features"
	outputFeaturesSection = "output_features"
	combinerSection       = "combiner"
	trainingSection       = "training"
	preprocessingSection  = "preprocessing"
)

// SubstituteParameters applies a flat dotted-path mapping into a nested
// model definition, overwriting matching leaf keys in place. A value that
// is itself a mapping has its sub-keys merged individually (one level of
// nesting) instead of replacing the whole sub-map.
//
// The definition is modified in place and returned; callers that need the
// original untouched pass a deep copy (see copyModelDefinition).
func SubstituteParameters(definition ModelDefinition, parameters ParameterMapping) ModelDefinition {
	nested := nestedParameters(parameters)

	for _, feature := range featureList(definition[inputFeaturesSection]) {
		name, _ := feature["name"].(string)
		setSectionValues(feature, name, nested)
	}

	for _, feature := range featureList(definition[outputFeaturesSection]) {
		name, _ := feature["name"].(string)
		setSectionValues(feature, name, nested)
	}

	for _, section := range []string{combinerSection, trainingSection, preprocessingSection} {
		if m, ok := definition[section].(map[string]any); ok {
			setSectionValues(m, section, nested)
		}
	}

	return definition
}

// nestedParameters converts a flat dotted-path mapping into a nested tree,
// splitting each key on ".".
func nestedParameters(parameters ParameterMapping) map[string]any {
	nested := map[string]any{}

	for name, value := range parameters {
		current := nested
		path := strings.Split(name, ".")

		for i, elem := range path {
			if i == len(path)-1 {
				current[elem] = value

				continue
			}

			child, ok := current[elem].(map[string]any)
			if !ok {
				child = map[string]any{}
				current[elem] = child
			}

			current = child
		}
	}

	return nested
}

// setSectionValues merges the nested values addressed to the named section
// into it. Mapping values merge one level deep; everything else overwrites
// the leaf key.
func setSectionValues(section map[string]any, name string, nested map[string]any) {
	values, ok := nested[name].(map[string]any)
	if !ok {
		return
	}

	for key, value := range values {
		if sub, ok := value.(map[string]any); ok {
			target, ok := section[key].(map[string]any)
			if !ok {
				target = map[string]any{}
				section[key] = target
			}

			for subKey, subValue := range sub {
				target[subKey] = subValue
			}

			continue
		}

		section[key] = value
	}
}

// featureList normalizes a feature section into a slice of maps. YAML
// decoding yields []any, hand-built definitions often []map[string]any.
func featureList(value any) []map[string]any {
	switch features := value.(type) {
	case []map[string]any:
		return features
	case []any:
		out := make([]map[string]any, 0, len(features))

		for _, f := range features {
			if m, ok := f.(map[string]any); ok {
				out = append(out, m)
			}
		}

		return out
	default:
		return nil
	}
}

// copyModelDefinition deep-copies a model definition so substitution for
// one trial can never leak into another trial's (or the caller's) copy.
func copyModelDefinition(definition ModelDefinition) (ModelDefinition, error) {
	copied, err := copystructure.Copy(map[string]any(definition))
	if err != nil {
		return nil, fmt.Errorf("copying model definition: %w", err)
	}

	return ModelDefinition(copied.(map[string]any)), nil
}
