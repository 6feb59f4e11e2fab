package hypertune

import (
	"context"
	"errors"
)

//////
// Serial executor.
//////

// SerialExecutor runs every trial synchronously, one after another, in the
// calling goroutine. Simplest model, fully sequential: a trial blocks the
// loop until it completes.
type SerialExecutor struct {
	executorBase

	batchSize            int
	isolateTrialFailures bool
}

func newSerialExecutor(strategy Strategy, outputFeature, metric string, split Split, opts ExecutorOptions) (Executor, error) {
	if opts.Train == nil {
		return nil, newConfigurationError("serial executor requires a train function")
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 1
	}

	return &SerialExecutor{
		executorBase: executorBase{
			strategy:      strategy,
			outputFeature: outputFeature,
			metric:        metric,
			split:         split,
			train:         opts.Train,
			logger:        opts.Logger,
		},
		batchSize:            batchSize,
		isolateTrialFailures: opts.IsolateTrialFailures,
	}, nil
}

// Execute drives the ask/run/tell loop until the strategy is exhausted,
// then ranks the accumulated results.
func (e *SerialExecutor) Execute(ctx context.Context, definition ModelDefinition, opts RunOptions) (ResultSet, error) {
	var results []TrialResult

	gpus := joinDeviceIDs(opts.GPUs)

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

		batchResults := make([]TrialResult, 0, len(batch))

		for _, parameters := range batch {
			result, err := e.runTrial(ctx, definition, opts, parameters, gpus, opts.GPUMemoryLimit)
			if err != nil {
				if !e.isolateTrialFailures {
					return nil, err
				}

				result = failedTrial(parameters, err)
			}

			batchResults = append(batchResults, result)
		}

		e.strategy.UpdateBatch(observations(batchResults))

		results = append(results, batchResults...)
	}

	return e.rankResults(results), nil
}
