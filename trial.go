package hypertune

import (
	"context"
	"fmt"
)

//////
// Trial contract.
//
// Training and evaluation are external collaborators behind a single
// function: given a substituted model definition and the run's dataset,
// naming, output and device settings, return training and evaluation
// statistics. Executors call it, possibly concurrently; implementations
// must be safe to call concurrently with disjoint output directories
// (distinct experiment/model names per concurrent trial are the caller's
// responsibility if collisions matter).
//////

// Split selects which dataset split a trial is evaluated on.
type Split string

const (
	TrainingSplit   Split = "training"
	ValidationSplit Split = "validation"
	TestSplit       Split = "test"
)

// Dataset references the data a trial trains and evaluates on. Which
// fields are meaningful is a contract between the caller and the training
// collaborator; executors pass them through untouched.
type Dataset struct {
	// Full references a dataset the collaborator splits itself.
	Full string `yaml:"full,omitempty"`

	// Training, Validation and Test reference pre-split datasets.
	Training   string `yaml:"training,omitempty"`
	Validation string `yaml:"validation,omitempty"`
	Test       string `yaml:"test,omitempty"`

	// MetadataJSON references pre-computed training-set metadata.
	MetadataJSON string `yaml:"metadata_json,omitempty"`
}

// OutputFlags controls which artifacts the training collaborator persists.
type OutputFlags struct {
	SkipSaveTrainingDescription bool `yaml:"skip_save_training_description,omitempty"`
	SkipSaveTrainingStatistics  bool `yaml:"skip_save_training_statistics,omitempty"`
	SkipSaveModel               bool `yaml:"skip_save_model,omitempty"`
	SkipSaveProgress            bool `yaml:"skip_save_progress,omitempty"`
	SkipSaveLog                 bool `yaml:"skip_save_log,omitempty"`
	SkipSaveProcessedInput      bool `yaml:"skip_save_processed_input,omitempty"`
	SkipSaveUnprocessedOutput   bool `yaml:"skip_save_unprocessed_output,omitempty"`
	SkipSaveTestPredictions     bool `yaml:"skip_save_test_predictions,omitempty"`
	SkipSaveTestStatistics      bool `yaml:"skip_save_test_statistics,omitempty"`
}

// TrialRun is everything the training collaborator needs for one trial:
// the substituted model definition plus dataset, naming, output and device
// settings.
type TrialRun struct {
	// ModelDefinition is the definition with this trial's parameters
	// already substituted in.
	ModelDefinition ModelDefinition

	// Dataset references the training data.
	Dataset Dataset

	// EvalSplit is the split evaluation statistics are computed on.
	EvalSplit Split

	// ExperimentName and ModelName name the run's output location.
	ExperimentName string
	ModelName      string

	// OutputDirectory is where artifacts are written.
	OutputDirectory string

	// OutputFlags controls which artifacts are persisted.
	OutputFlags OutputFlags

	// GPUs is the device selection for this trial, a comma-separated list
	// of device ids. Empty means no device pinning.
	GPUs string

	// GPUMemoryLimit caps this trial's memory on its device, in MB. Zero
	// means no limit.
	GPUMemoryLimit float64

	// AllowParallelThreads lets the collaborator use multi-threaded ops.
	AllowParallelThreads bool

	// RandomSeed makes the trial reproducible.
	RandomSeed int64
}

// TrainFunc trains and evaluates one model configuration and returns its
// training and evaluation statistics. The context covers the whole trial.
type TrainFunc func(ctx context.Context, run TrialRun) (TrainingStats, EvalStats, error)

// extractMetricScore pulls the target metric out of evaluation statistics
// via the fixed lookup path evalStats[outputFeature][metric].
func extractMetricScore(evalStats EvalStats, outputFeature, metric string) (float64, error) {
	metrics, ok := evalStats[outputFeature]
	if !ok {
		return 0, fmt.Errorf("evaluation statistics have no output feature %q", outputFeature)
	}

	score, ok := metrics[metric]
	if !ok {
		return 0, fmt.Errorf("output feature %q has no metric %q", outputFeature, metric)
	}

	return score, nil
}
