// Package runner integrates with the external CI system that executes the
// actual image transfers.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RunStatus is the external runner's view of a run.
type RunStatus string

const (
	// StatusQueued means the run has not started yet.
	StatusQueued RunStatus = "queued"

	// StatusInProgress means the run is executing.
	StatusInProgress RunStatus = "in_progress"

	// StatusCompleted means the run reached a conclusion.
	StatusCompleted RunStatus = "completed"
)

// Run describes a single workflow run.
type Run struct {
	ID         int64
	RunNumber  int64
	Status     RunStatus
	Conclusion string
	URL        string
}

// WorkflowRunner dispatches workflows and reports run state.
type WorkflowRunner interface {
	// Dispatch triggers a workflow by file name on the given ref with named
	// inputs. The runner does not return a run identifier synchronously.
	Dispatch(ctx context.Context, workflowFile, ref string, inputs map[string]string) error

	// ListRecentRuns returns the most recent runs of a workflow, newest
	// first.
	ListRecentRuns(ctx context.Context, workflowFile string) ([]Run, error)

	// GetRun returns the current state of a run.
	GetRun(ctx context.Context, runID int64) (*Run, error)
}

// errRunNotVisible drives the discovery retry loop.
var errRunNotVisible = errors.New("dispatched run not visible yet")

// discoverConfig holds the retry budget for run discovery.
type discoverConfig struct {
	initialInterval time.Duration
	maxElapsed      time.Duration
}

// DiscoverOption tunes DiscoverNewRun.
type DiscoverOption func(*discoverConfig)

// WithDiscoverBudget overrides the discovery retry budget. Used by tests to
// keep the loop short.
func WithDiscoverBudget(initialInterval, maxElapsed time.Duration) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.initialInterval = initialInterval
		cfg.maxElapsed = maxElapsed
	}
}

// LatestRunID returns the id of the most recent run of the workflow, or
// zero when it has never run.
func LatestRunID(ctx context.Context, r WorkflowRunner, workflowFile string) (int64, error) {
	runs, err := r.ListRecentRuns(ctx, workflowFile)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}
	return runs[0].ID, nil
}

// DiscoverNewRun polls the runner with exponential backoff until a run newer
// than sinceID becomes visible. The runner registers dispatched runs
// asynchronously, so absence within the budget is not an error: the run may
// simply not be listed yet, and the result is (nil, nil).
func DiscoverNewRun(
	ctx context.Context, r WorkflowRunner, workflowFile string, sinceID int64, opts ...DiscoverOption,
) (*Run, error) {
	cfg := &discoverConfig{
		initialInterval: 2 * time.Second,
		maxElapsed:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	operation := func() (*Run, error) {
		runs, err := r.ListRecentRuns(ctx, workflowFile)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for _, run := range runs {
			if run.ID > sinceID {
				found := run
				return &found, nil
			}
		}
		return nil, errRunNotVisible
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.initialInterval

	run, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(cfg.maxElapsed),
	)
	if err != nil {
		if errors.Is(err, errRunNotVisible) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}
