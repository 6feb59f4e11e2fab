package hypertune

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scoringTrainFunc fakes the training collaborator: the metric score of a
// trial is computed from its run by the given function.
func scoringTrainFunc(score func(run TrialRun) float64) TrainFunc {
	return func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
		return TrainingStats{"epochs": 1},
			EvalStats{"combined": {"loss": score(run)}},
			nil
	}
}

// batchSizeScore reads the substituted training.batch_size back out of the
// run, so the score is a pure function of the sampled parameters.
func batchSizeScore(run TrialRun) float64 {
	training := run.ModelDefinition["training"].(map[string]any)

	return float64(training["batch_size"].(int))
}

func gridOverBatchSize(t *testing.T, goal Goal) Strategy {
	t.Helper()

	strategy, err := NewStrategy("grid", map[string]ParameterSpec{
		"training.batch_size": {
			Type:  IntParameter,
			Range: Range{Low: 1, High: 3},
		},
	}, goal, StrategyOptions{})
	require.NoError(t, err)

	return strategy
}

func TestNewExecutorUnknownType(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	_, err := NewExecutor("threaded", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, err.Error(), "distributed, parallel, serial")
}

func TestSerialExecutorRequiresTrainFunc(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	_, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestSerialExecutorRanksMinimize(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: scoringTrainFunc(batchSizeScore),
	})
	require.NoError(t, err)

	results, err := executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].MetricScore, results[i].MetricScore)
	}

	best := results.Best()
	assert.Equal(t, 1.0, best.MetricScore)
	assert.Equal(t, 1, best.Parameters["training.batch_size"])
	assert.Equal(t, TrainingStats{"epochs": 1}, best.TrainingStats)
}

func TestSerialExecutorRanksMaximize(t *testing.T) {
	strategy := gridOverBatchSize(t, Maximize)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: scoringTrainFunc(batchSizeScore),
	})
	require.NoError(t, err)

	results, err := executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 3.0, results.Best().MetricScore)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].MetricScore, results[i].MetricScore)
	}
}

func TestSerialExecutorFailsFastByDefault(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	trialErr := errors.New("out of memory")

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
			if batchSizeScore(run) == 2 {
				return nil, nil, trialErr
			}

			return nil, EvalStats{"combined": {"loss": 0}}, nil
		},
	})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	assert.ErrorIs(t, err, trialErr)
}

func TestSerialExecutorIsolatesTrialFailures(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	trialErr := errors.New("out of memory")

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		IsolateTrialFailures: true,
		Train: func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
			if batchSizeScore(run) == 2 {
				return nil, nil, trialErr
			}

			return nil, EvalStats{"combined": {"loss": batchSizeScore(run)}}, nil
		},
	})
	require.NoError(t, err)

	results, err := executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The failed trial ranks last, keeps its parameters, and carries the
	// error and a NaN score.
	failed := results[len(results)-1]
	assert.ErrorIs(t, failed.Err, trialErr)
	assert.True(t, math.IsNaN(failed.MetricScore))
	assert.Equal(t, 2, failed.Parameters["training.batch_size"])

	for _, r := range results[:len(results)-1] {
		assert.NoError(t, r.Err)
	}
}

func TestSerialExecutorMissingMetric(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
			return nil, EvalStats{"class": {"accuracy": 0.9}}, nil
		},
	})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "combined")
}

func TestSerialExecutorHonorsContextCancellation(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: scoringTrainFunc(batchSizeScore),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = executor.Execute(ctx, testModelDefinition(), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerialExecutorAppliesRunDefaults(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	var runs []TrialRun

	executor, err := NewExecutor("serial", strategy, "combined", "loss", TestSplit, ExecutorOptions{
		Train: func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error) {
			runs = append(runs, run)

			return nil, EvalStats{"combined": {"loss": 0}}, nil
		},
	})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), testModelDefinition(), RunOptions{
		GPUs: []string{"0", "1"},
	})
	require.NoError(t, err)
	require.Len(t, runs, 3)

	for _, run := range runs {
		assert.Equal(t, "hyperopt", run.ExperimentName)
		assert.Equal(t, "run", run.ModelName)
		assert.Equal(t, "results", run.OutputDirectory)
		assert.Equal(t, TestSplit, run.EvalSplit)
		assert.Equal(t, "0,1", run.GPUs)
	}
}

func TestSerialExecutorLeavesDefinitionUntouched(t *testing.T) {
	strategy := gridOverBatchSize(t, Minimize)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: scoringTrainFunc(batchSizeScore),
	})
	require.NoError(t, err)

	definition := testModelDefinition()

	_, err = executor.Execute(context.Background(), definition, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, testModelDefinition(), definition)
}

func TestSerialExecutorFeedsObservationsBack(t *testing.T) {
	// A surrogate strategy only works when the executor tells it every
	// score; count the model's observations after a full run.
	strategy, err := NewStrategy("surrogate", map[string]ParameterSpec{
		"training.batch_size": {
			Type:  IntParameter,
			Range: Range{Low: 1, High: 100},
		},
	}, Minimize, StrategyOptions{NumSamples: 4, Seed: 13})
	require.NoError(t, err)

	executor, err := NewExecutor("serial", strategy, "combined", "loss", ValidationSplit, ExecutorOptions{
		Train: scoringTrainFunc(batchSizeScore),
	})
	require.NoError(t, err)

	results, err := executor.Execute(context.Background(), testModelDefinition(), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 4)

	surrogate := strategy.(*SurrogateStrategy)
	assert.Len(t, surrogate.optimizer.gp.Y, 4)
}

func TestRankResultsIsStableForTies(t *testing.T) {
	base := executorBase{strategy: gridOverBatchSize(t, Minimize)}

	tied := []TrialResult{
		{Parameters: ParameterMapping{"id": 1}, MetricScore: 0.5},
		{Parameters: ParameterMapping{"id": 2}, MetricScore: 0.5},
		{Parameters: ParameterMapping{"id": 3}, MetricScore: 0.1},
	}

	ranked := base.rankResults(tied)
	require.Len(t, ranked, 3)

	assert.Equal(t, 3, ranked[0].Parameters["id"])
	assert.Equal(t, 1, ranked[1].Parameters["id"])
	assert.Equal(t, 2, ranked[2].Parameters["id"])
}

func TestObservationsSkipFailedTrials(t *testing.T) {
	obs := observations([]TrialResult{
		{Parameters: ParameterMapping{"x": 1}, MetricScore: 0.5},
		failedTrial(ParameterMapping{"x": 2}, fmt.Errorf("boom")),
		{Parameters: ParameterMapping{"x": 3}, MetricScore: 0.1},
	})

	require.Len(t, obs, 2)
	assert.Equal(t, 1, obs[0].Parameters["x"])
	assert.Equal(t, 3, obs[1].Parameters["x"])
}
