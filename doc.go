// Package hypertune performs automated hyperparameter search over a model
// training pipeline: it proposes parameter configurations, trains and
// evaluates a model for each through an external collaborator, and drives
// the search toward better configurations according to a chosen strategy.
//
// # Strategies
//
// A Strategy proposes configurations ("ask") and may incorporate observed
// scores ("tell"):
//
//   - grid: the deterministic cross product of every parameter's candidate
//     grid, iterated in sorted-name order for reproducibility
//   - random: a fixed number of independent uniform draws, pre-generated at
//     construction so a seed fully determines the sequence
//   - surrogate: Bayesian-style optimization; a Gaussian Process model
//     predicts the metric at untested points and an acquisition function
//     (UCB, probability of improvement, expected improvement, Thompson
//     sampling) selects the most promising candidate, so every observation
//     influences subsequent proposals
//
// # Executors
//
// An Executor schedules trials under a concurrency model, repeatedly
// asking the strategy for a batch, dispatching each configuration as one
// train-and-evaluate trial, feeding the scores back, and finally ranking
// all results by the search goal:
//
//   - serial: one trial at a time in the calling goroutine
//   - parallel: a fixed-size local worker pool; accelerator devices are
//     time-shared through a pool of memory slots, so more workers than
//     devices can run without exhausting device memory
//   - distributed: batches are shipped to a RemotePool with optional
//     per-trial resource reservations; scheduling is the pool's concern
//
// Dispatch is batch-barrier in every executor: proposals in batch N+1
// always see all observations from batch N, while trials within a batch
// are mutually unordered.
//
// # Usage
//
//	definition, err := hypertune.ParseSearchDefinition(searchYAML)
//	if err != nil {
//	    return err
//	}
//
//	executor, err := definition.Build(trainFunc, nil, logger)
//	if err != nil {
//	    return err
//	}
//
//	results, err := executor.Execute(ctx, modelDefinition, hypertune.RunOptions{
//	    Dataset: hypertune.Dataset{Full: "data.csv"},
//	})
//	if err != nil {
//	    return err
//	}
//
//	best := results.Best()
//
// The training pipeline itself, dataset formats and output persistence are
// deliberately outside this package: they are reached only through the
// TrainFunc contract.
package hypertune
