package hypertune

import (
	"context"
	"errors"
	"fmt"
)

//////
// Distributed executor.
//////

// ResourceReservation declares per-trial resource shares for the
// distributed pool's scheduler. Zero fields mean no reservation. The
// reservation is declarative: the pool enforces it, not this process.
type ResourceReservation struct {
	CPUs float64
	GPUs float64
}

// TrialOutput is what the distributed pool returns for one trial run.
type TrialOutput struct {
	TrainingStats TrainingStats
	EvalStats     EvalStats
}

// RemotePool dispatches trial runs to a distributed worker pool. Map
// blocks until every run in the batch has completed and returns their
// outputs in run order.
type RemotePool interface {
	Map(ctx context.Context, reservation ResourceReservation, runs []TrialRun) ([]TrialOutput, error)
}

// DistributedExecutor drives the same ask/dispatch/collect/tell loop as
// the parallel executor, but ships each batch to a distributed worker
// pool instead of local workers. There is no slot queue here: device and
// memory management is the distributed scheduler's responsibility,
// steered only by the per-trial reservation.
type DistributedExecutor struct {
	executorBase

	pool        RemotePool
	batchSize   int
	reservation ResourceReservation
}

func newDistributedExecutor(strategy Strategy, outputFeature, metric string, split Split, opts ExecutorOptions) (Executor, error) {
	if opts.Pool == nil {
		return nil, newConfigurationError("distributed executor requires a remote pool")
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = opts.NumWorkers
	}

	return &DistributedExecutor{
		executorBase: executorBase{
			strategy:      strategy,
			outputFeature: outputFeature,
			metric:        metric,
			split:         split,
			logger:        opts.Logger,
		},
		pool:      opts.Pool,
		batchSize: batchSize,
		reservation: ResourceReservation{
			CPUs: opts.CPUsPerWorker,
			GPUs: opts.GPUsPerWorker,
		},
	}, nil
}

// Execute substitutes each sampled batch into fresh definition copies,
// maps the batch over the distributed pool (batch barrier), extracts
// scores and feeds them back to the strategy until it is exhausted.
func (e *DistributedExecutor) Execute(ctx context.Context, definition ModelDefinition, opts RunOptions) (ResultSet, error) {
	var results []TrialResult

	for !e.strategy.Finished() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := e.strategy.SampleBatch(e.batchSize)
		if err != nil {
			if errors.Is(err, ErrExhausted) {
				break
			}

			return nil, err
		}

		runs := make([]TrialRun, len(batch))

		for i, parameters := range batch {
			copied, err := copyModelDefinition(definition)
			if err != nil {
				return nil, err
			}

			runs[i] = TrialRun{
				ModelDefinition:      SubstituteParameters(copied, parameters),
				Dataset:              opts.Dataset,
				EvalSplit:            e.split,
				ExperimentName:       defaultString(opts.ExperimentName, "hyperopt"),
				ModelName:            defaultString(opts.ModelName, "run"),
				OutputDirectory:      defaultString(opts.OutputDirectory, "results"),
				OutputFlags:          opts.OutputFlags,
				GPUs:                 joinDeviceIDs(opts.GPUs),
				GPUMemoryLimit:       opts.GPUMemoryLimit,
				AllowParallelThreads: opts.AllowParallelThreads,
				RandomSeed:           opts.RandomSeed,
			}
		}

		outputs, err := e.pool.Map(ctx, e.reservation, runs)
		if err != nil {
			return nil, err
		}

		if len(outputs) != len(batch) {
			return nil, fmt.Errorf("remote pool returned %d outputs for %d runs", len(outputs), len(batch))
		}

		batchResults := make([]TrialResult, 0, len(batch))

		for i, output := range outputs {
			score, err := extractMetricScore(output.EvalStats, e.outputFeature, e.metric)
			if err != nil {
				return nil, err
			}

			batchResults = append(batchResults, TrialResult{
				Parameters:    batch[i],
				MetricScore:   score,
				TrainingStats: output.TrainingStats,
				EvalStats:     output.EvalStats,
			})
		}

		e.strategy.UpdateBatch(observations(batchResults))

		results = append(results, batchResults...)
	}

	return e.rankResults(results), nil
}
