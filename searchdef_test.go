package hypertune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchYAML = `
parameters:
  training.learning_rate:
    type: real
    range: [0.0001, 0.1]
    steps: 4
    space: log
  combiner.num_fc_layers:
    type: int
    range: [1, 4]
  utterance.cell_type:
    type: category
    values: [rnn, gru, lstm]
goal: maximize
output_feature: class
metric: accuracy
split: test
strategy:
  type: random
  num_samples: 6
  seed: 42
executor:
  type: parallel
  num_workers: 4
  epsilon: 0.02
  isolate_trial_failures: true
`

func TestParseSearchDefinition(t *testing.T) {
	def, err := ParseSearchDefinition([]byte(searchYAML))
	require.NoError(t, err)

	assert.Equal(t, Maximize, def.Goal)
	assert.Equal(t, "class", def.OutputFeature)
	assert.Equal(t, "accuracy", def.Metric)
	assert.Equal(t, TestSplit, def.Split)

	lr := def.Parameters["training.learning_rate"]
	assert.Equal(t, RealParameter, lr.Type)
	assert.Equal(t, Range{Low: 0.0001, High: 0.1}, lr.Range)
	assert.Equal(t, 4, lr.Steps)
	assert.Equal(t, LogSpace, lr.Space)

	layers := def.Parameters["combiner.num_fc_layers"]
	assert.Equal(t, IntParameter, layers.Type)
	assert.Equal(t, Range{Low: 1, High: 4}, layers.Range)

	cell := def.Parameters["utterance.cell_type"]
	assert.Equal(t, CategoryParameter, cell.Type)
	assert.Equal(t, []any{"rnn", "gru", "lstm"}, cell.Values)

	assert.Equal(t, "random", def.Strategy.Type)
	assert.Equal(t, 6, def.Strategy.NumSamples)
	assert.Equal(t, int64(42), def.Strategy.Seed)

	assert.Equal(t, "parallel", def.Executor.Type)
	assert.Equal(t, 4, def.Executor.NumWorkers)
	assert.Equal(t, 0.02, def.Executor.Epsilon)
	assert.True(t, def.Executor.IsolateTrialFailures)
}

func TestParseSearchDefinitionDefaults(t *testing.T) {
	def, err := ParseSearchDefinition([]byte(`
parameters:
  training.batch_size:
    type: int
    range: [16, 256]
`))
	require.NoError(t, err)

	assert.Equal(t, Minimize, def.Goal)
	assert.Equal(t, CombinedFeature, def.OutputFeature)
	assert.Equal(t, LossMetric, def.Metric)
	assert.Equal(t, ValidationSplit, def.Split)
	assert.Equal(t, "random", def.Strategy.Type)
	assert.Equal(t, "serial", def.Executor.Type)
}

func TestParseSearchDefinitionNoParameters(t *testing.T) {
	_, err := ParseSearchDefinition([]byte(`goal: minimize`))

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestParseSearchDefinitionMalformedRange(t *testing.T) {
	_, err := ParseSearchDefinition([]byte(`
parameters:
  training.batch_size:
    type: int
    range: [16, 256, 512]
`))
	assert.Error(t, err)
}

func TestParseSearchDefinitionMalformedYAML(t *testing.T) {
	_, err := ParseSearchDefinition([]byte("parameters: ["))
	assert.Error(t, err)
}

func TestBuildWiresStrategyAndExecutor(t *testing.T) {
	def, err := ParseSearchDefinition([]byte(searchYAML))
	require.NoError(t, err)

	// Shrink the run so the test stays fast.
	def.Strategy.NumSamples = 3
	def.Executor.AvailableGPUs = func() []string { return nil }

	executor, err := def.Build(func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
		training := run.ModelDefinition["training"].(map[string]any)

		return nil, EvalStats{"class": {"accuracy": training["learning_rate"].(float64)}}, nil
	}, nil, nil)
	require.NoError(t, err)

	results, err := executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Maximizing accuracy: best first.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].MetricScore, results[i].MetricScore)
	}
}

func TestBuildUnknownStrategyType(t *testing.T) {
	def, err := ParseSearchDefinition([]byte(`
parameters:
  training.batch_size:
    type: int
    range: [16, 256]
strategy:
  type: genetic
`))
	require.NoError(t, err)

	_, err = def.Build(scoringTrainFunc(func(TrialRun) float64 { return 0 }), nil, nil)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestBuildUnknownExecutorType(t *testing.T) {
	def, err := ParseSearchDefinition([]byte(`
parameters:
  training.batch_size:
    type: int
    range: [16, 256]
executor:
  type: threaded
`))
	require.NoError(t, err)

	_, err = def.Build(scoringTrainFunc(func(TrialRun) float64 { return 0 }), nil, nil)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}
