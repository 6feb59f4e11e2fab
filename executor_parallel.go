package hypertune

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

//////
// Parallel executor.
//////

// ParallelExecutor runs each sampled batch on a fixed-size local worker
// pool. When accelerator devices are in play it builds a shared GPU slot
// pool up front: a worker dequeues a slot before its trial, runs the trial
// pinned to the slot's device and memory limit, and returns the slot
// afterwards on every exit path so remaining workers never deadlock.
//
// Dispatch is batch-barrier: the whole sampled batch completes before the
// strategy is asked for the next one, so proposals in batch N+1 always see
// all observations from batch N. Trials within a batch are mutually
// unordered.
type ParallelExecutor struct {
	executorBase

	numWorkers           int
	epsilon              float64
	batchSize            int
	isolateTrialFailures bool

	availableGPUs func() []string
	freeGPUMemory func() ([]float64, error)
}

func newParallelExecutor(strategy Strategy, outputFeature, metric string, split Split, opts ExecutorOptions) (Executor, error) {
	if opts.Train == nil {
		return nil, newConfigurationError("parallel executor requires a train function")
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = opts.NumWorkers
	}

	availableGPUs := opts.AvailableGPUs
	if availableGPUs == nil {
		availableGPUs = availableGPUDevices
	}

	queryFreeMemory := opts.FreeGPUMemory
	if queryFreeMemory == nil {
		queryFreeMemory = freeGPUMemory
	}

	return &ParallelExecutor{
		executorBase: executorBase{
			strategy:      strategy,
			outputFeature: outputFeature,
			metric:        metric,
			split:         split,
			train:         opts.Train,
			logger:        opts.Logger,
		},
		numWorkers:           opts.NumWorkers,
		epsilon:              opts.Epsilon,
		batchSize:            batchSize,
		isolateTrialFailures: opts.IsolateTrialFailures,
		availableGPUs:        availableGPUs,
		freeGPUMemory:        queryFreeMemory,
	}, nil
}

// Execute partitions device memory into a slot pool (when devices are
// available), then drives the ask/dispatch/collect/tell loop until the
// strategy is exhausted.
func (e *ParallelExecutor) Execute(ctx context.Context, definition ModelDefinition, opts RunOptions) (ResultSet, error) {
	slots, err := e.buildSlots(opts)
	if err != nil {
		return nil, err
	}

	var results []TrialResult

	workers := make(chan struct{}, e.numWorkers)

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

		batchResults, err := e.dispatch(ctx, workers, slots, definition, opts, batch)
		if err != nil {
			return nil, err
		}

		e.strategy.UpdateBatch(observations(batchResults))

		results = append(results, batchResults...)
	}

	return e.rankResults(results), nil
}

// dispatch runs one full batch on the worker pool and waits for all of it
// (batch barrier) before collecting. Results keep the batch's sample
// order regardless of completion order, so ranking ties stay stable.
func (e *ParallelExecutor) dispatch(ctx context.Context, workers chan struct{}, slots *gpuSlotPool, definition ModelDefinition, opts RunOptions, batch []ParameterMapping) ([]TrialResult, error) {
	trialResults := make([]TrialResult, len(batch))
	trialErrs := make([]error, len(batch))

	var wg sync.WaitGroup

	for i, parameters := range batch {
		wg.Add(1)

		go func(idx int, parameters ParameterMapping) {
			defer wg.Done()

			workers <- struct{}{}
			defer func() { <-workers }()

			gpus, memoryLimit := joinDeviceIDs(opts.GPUs), opts.GPUMemoryLimit

			if slots != nil {
				slot := slots.acquire()
				// The slot goes back no matter how the trial ends.
				defer slots.release(slot)

				gpus, memoryLimit = slot.DeviceID, slot.MemoryLimit
			}

			trialResults[idx], trialErrs[idx] = e.runTrial(ctx, definition, opts, parameters, gpus, memoryLimit)
		}(i, parameters)
	}

	wg.Wait()

	collected := make([]TrialResult, 0, len(batch))

	for i := range batch {
		if err := trialErrs[i]; err != nil {
			if !e.isolateTrialFailures {
				return nil, err
			}

			collected = append(collected, failedTrial(batch[i], err))

			continue
		}

		collected = append(collected, trialResults[i])
	}

	return collected, nil
}

// buildSlots resolves the device selection and partitions device memory
// into the shared slot pool. Returns nil when no devices are in play.
func (e *ParallelExecutor) buildSlots(opts RunOptions) (*gpuSlotPool, error) {
	deviceIDs := opts.GPUs
	if deviceIDs == nil {
		deviceIDs = e.availableGPUs()
	}

	if len(deviceIDs) == 0 {
		return nil, nil
	}

	if cpus := runtime.NumCPU(); e.numWorkers > cpus {
		e.logger.Warn("more workers than available cpus; consider lowering num_workers to avoid bottlenecks",
			zap.Int("num_workers", e.numWorkers),
			zap.Int("num_available_cpus", cpus),
		)
	}

	freeMemory, err := e.freeGPUMemory()
	if err != nil {
		return nil, err
	}

	return buildGPUSlotPool(deviceIDs, freeMemory, e.numWorkers, e.epsilon, opts.GPUMemoryLimit, e.logger)
}
