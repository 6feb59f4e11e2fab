package hypertune

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//////
// Executor contract and factory.
//////

// Executor schedules and runs trials under a concurrency model, driving
// the ask/run/tell loop: ask the strategy for a batch of configurations,
// run a trial per configuration, feed the scores back, and accumulate
// results until the strategy is exhausted.
type Executor interface {
	// Execute runs the whole search and returns every completed trial,
	// ranked by metric score in the direction of the strategy's goal.
	//
	// There is no per-trial timeout: a hung trial stalls its batch until
	// the context is cancelled.
	Execute(ctx context.Context, definition ModelDefinition, opts RunOptions) (ResultSet, error)
}

// RunOptions carries the per-run inputs every trial shares: dataset
// references, run naming, output control, device selection and the
// reproducibility seed.
type RunOptions struct {
	// Dataset references the training data.
	Dataset Dataset `yaml:"dataset,omitempty"`

	// ExperimentName and ModelName name the run. Defaults: "hyperopt" and
	// "run".
	ExperimentName string `yaml:"experiment_name,omitempty"`
	ModelName      string `yaml:"model_name,omitempty"`

	// OutputDirectory is where trial artifacts land. Default "results".
	OutputDirectory string `yaml:"output_directory,omitempty"`

	// OutputFlags controls which artifacts trials persist.
	OutputFlags OutputFlags `yaml:"output_flags,omitempty"`

	// GPUs explicitly selects accelerator devices by id. Nil lets the
	// parallel executor discover the host's devices itself.
	GPUs []string `yaml:"gpus,omitempty"`

	// GPUMemoryLimit caps per-trial device memory, in MB. Zero derives a
	// fair share from free memory when devices are shared.
	GPUMemoryLimit float64 `yaml:"gpu_memory_limit,omitempty"`

	// AllowParallelThreads lets trials use multi-threaded ops.
	AllowParallelThreads bool `yaml:"allow_parallel_threads,omitempty"`

	// RandomSeed seeds each trial for reproducibility.
	RandomSeed int64 `yaml:"random_seed,omitempty"`
}

// ExecutorOptions is the declared schema of recognized executor options.
// Unset fields fall back to the per-type defaults applied by NewExecutor.
type ExecutorOptions struct {
	// Type selects the executor: serial, parallel or distributed.
	Type string `yaml:"type"`

	// NumWorkers is the size of the parallel/distributed worker pool.
	// Defaults to 2.
	NumWorkers int `yaml:"num_workers,omitempty"`

	// Epsilon is the safety margin subtracted from the fair per-device
	// memory fraction. Defaults to 0.01.
	Epsilon float64 `yaml:"epsilon,omitempty"`

	// BatchSize is how many configurations are asked for per batch.
	// Defaults to 1 for the serial executor and NumWorkers otherwise.
	BatchSize int `yaml:"batch_size,omitempty"`

	// IsolateTrialFailures records a failing trial as a failed result
	// instead of aborting the whole run. Off by default: the first trial
	// error aborts the batch and the run.
	IsolateTrialFailures bool `yaml:"isolate_trial_failures,omitempty"`

	// CPUsPerWorker and GPUsPerWorker are optional per-trial resource
	// reservations honored by the distributed pool's scheduler. Zero
	// means no reservation.
	CPUsPerWorker float64 `yaml:"cpus_per_worker,omitempty"`
	GPUsPerWorker float64 `yaml:"gpus_per_worker,omitempty"`

	// Train is the training collaborator. Required for the serial and
	// parallel executors.
	Train TrainFunc `yaml:"-"`

	// Pool is the distributed worker pool. Required for the distributed
	// executor.
	Pool RemotePool `yaml:"-"`

	// Logger receives informational warnings (resource utilization,
	// worker counts). Defaults to a no-op logger.
	Logger *zap.Logger `yaml:"-"`

	// AvailableGPUs and FreeGPUMemory override the host device queries,
	// mainly for tests. Defaults query the device management tool.
	AvailableGPUs func() []string           `yaml:"-"`
	FreeGPUMemory func() ([]float64, error) `yaml:"-"`
}

// executorConstructor builds one executor variant from validated inputs.
type executorConstructor func(strategy Strategy, outputFeature, metric string, split Split, opts ExecutorOptions) (Executor, error)

// executorRegistry resolves an executor type name to its constructor.
var executorRegistry = map[string]executorConstructor{
	"serial":      newSerialExecutor,
	"parallel":    newParallelExecutor,
	"distributed": newDistributedExecutor,
}

// Per-type option defaults for executors.
const (
	defaultNumWorkers = 2
	defaultEpsilon    = 0.01
)

// NewExecutor builds the named executor around a strategy. The target
// metric of every trial is extracted from its evaluation statistics at
// evalStats[outputFeature][metric], computed on the given split. Unknown
// executor types fail with a ConfigurationError.
func NewExecutor(executorType string, strategy Strategy, outputFeature, metric string, split Split, opts ExecutorOptions) (Executor, error) {
	ctor, ok := executorRegistry[executorType]
	if !ok {
		return nil, newConfigurationError(
			"unknown executor type %q, available ones are: %s",
			executorType, strings.Join(registeredExecutorTypes(), ", "),
		)
	}

	if opts.NumWorkers == 0 {
		opts.NumWorkers = defaultNumWorkers
	}

	if opts.Epsilon == 0 {
		opts.Epsilon = defaultEpsilon
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return ctor(strategy, outputFeature, metric, split, opts)
}

// registeredExecutorTypes returns the registered type names, sorted.
func registeredExecutorTypes() []string {
	names := make([]string, 0, len(executorRegistry))
	for name := range executorRegistry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

//////
// Shared executor plumbing.
//////

// executorBase carries the state and helpers every executor shares.
type executorBase struct {
	strategy      Strategy
	outputFeature string
	metric        string
	split         Split
	train         TrainFunc
	logger        *zap.Logger
}

// runTrial substitutes one sampled mapping into a fresh copy of the model
// definition, invokes the training collaborator, and extracts the target
// metric.
func (e *executorBase) runTrial(ctx context.Context, definition ModelDefinition, opts RunOptions, parameters ParameterMapping, gpus string, gpuMemoryLimit float64) (TrialResult, error) {
	copied, err := copyModelDefinition(definition)
	if err != nil {
		return TrialResult{}, err
	}

	run := TrialRun{
		ModelDefinition:      SubstituteParameters(copied, parameters),
		Dataset:              opts.Dataset,
		EvalSplit:            e.split,
		ExperimentName:       defaultString(opts.ExperimentName, "hyperopt"),
		ModelName:            defaultString(opts.ModelName, "run"),
		OutputDirectory:      defaultString(opts.OutputDirectory, "results"),
		OutputFlags:          opts.OutputFlags,
		GPUs:                 gpus,
		GPUMemoryLimit:       gpuMemoryLimit,
		AllowParallelThreads: opts.AllowParallelThreads,
		RandomSeed:           opts.RandomSeed,
	}

	trainingStats, evalStats, err := e.train(ctx, run)
	if err != nil {
		return TrialResult{}, err
	}

	score, err := extractMetricScore(evalStats, e.outputFeature, e.metric)
	if err != nil {
		return TrialResult{}, err
	}

	return TrialResult{
		Parameters:    parameters,
		MetricScore:   score,
		TrainingStats: trainingStats,
		EvalStats:     evalStats,
	}, nil
}

// failedTrial records an isolated trial failure as a result instead of a
// run abort.
func failedTrial(parameters ParameterMapping, err error) TrialResult {
	return TrialResult{
		Parameters:  parameters,
		MetricScore: math.NaN(),
		Err:         err,
	}
}

// rankResults builds the final result set: stable-sorted by metric score,
// descending for a maximization goal, ascending otherwise. Failed trials
// always rank last.
func (e *executorBase) rankResults(results []TrialResult) ResultSet {
	ranked := make(ResultSet, len(results))
	copy(ranked, results)

	maximize := e.strategy.Goal() == Maximize

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Err != nil {
			return false
		}

		if ranked[j].Err != nil {
			return true
		}

		if maximize {
			return ranked[i].MetricScore > ranked[j].MetricScore
		}

		return ranked[i].MetricScore < ranked[j].MetricScore
	})

	return ranked
}

// observations pairs each successful result with its score for the
// strategy's batch update.
func observations(results []TrialResult) []Observation {
	obs := make([]Observation, 0, len(results))

	for _, r := range results {
		if r.Err != nil {
			continue
		}

		obs = append(obs, Observation{Parameters: r.Parameters, MetricScore: r.MetricScore})
	}

	return obs
}

// joinDeviceIDs renders an explicit device selection as the
// comma-separated list the training collaborator expects.
func joinDeviceIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
