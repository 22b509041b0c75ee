// Package service implements the sync job lifecycle: validation, kind
// determination, dispatch to the workflow runner, and reconciliation of
// running jobs against the runner's view.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/regbridge/regbridge/internal/config"
	"github.com/regbridge/regbridge/internal/imageref"
	"github.com/regbridge/regbridge/internal/runner"
	"github.com/regbridge/regbridge/internal/store"
)

var (
	// ErrValidation indicates a user-correctable problem with the request.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the job does not exist for the requesting owner.
	ErrNotFound = store.ErrNotFound

	// ErrDispatch indicates the workflow runner rejected the dispatch or was
	// unreachable. The job row is retained in failed state.
	ErrDispatch = errors.New("workflow dispatch failed")
)

// CreateRequest is a job submission.
type CreateRequest struct {
	SourceImage      string
	DestinationImage string

	// RequestedKind optionally forces the workflow kind. Empty means derive
	// it from the source reference.
	RequestedKind string
}

// SyncService coordinates the job store, the image reference validator, and
// the workflow runner.
type SyncService struct {
	store        store.Store
	runner       runner.WorkflowRunner
	validator    *imageref.Validator
	workflows    config.WorkflowsConfig
	logger       *slog.Logger
	discoverOpts []runner.DiscoverOption
}

// Option configures a SyncService.
type Option func(*SyncService)

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SyncService) {
		s.logger = logger
	}
}

// WithDiscoverOptions tunes post-dispatch run discovery. Used by tests.
func WithDiscoverOptions(opts ...runner.DiscoverOption) Option {
	return func(s *SyncService) {
		s.discoverOpts = opts
	}
}

// NewSyncService creates a SyncService.
func NewSyncService(
	st store.Store,
	r runner.WorkflowRunner,
	validator *imageref.Validator,
	workflows config.WorkflowsConfig,
	opts ...Option,
) *SyncService {
	s := &SyncService{
		store:     st,
		runner:    r,
		validator: validator,
		workflows: workflows,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new job, then dispatches it to the
// workflow runner. Dispatch failure leaves the job in failed state and
// returns ErrDispatch; the row is never discarded.
func (s *SyncService) Create(ctx context.Context, owner string, req CreateRequest) (*store.SyncJob, error) {
	if err := s.validator.Validate(req.SourceImage); err != nil {
		return nil, fmt.Errorf("%w: source image: %s", ErrValidation, err)
	}
	if err := s.validator.Validate(req.DestinationImage); err != nil {
		return nil, fmt.Errorf("%w: destination image: %s", ErrValidation, err)
	}

	source := imageref.Parse(req.SourceImage)
	destination := imageref.Parse(req.DestinationImage)

	kind, err := determineKind(req.RequestedKind, source)
	if err != nil {
		return nil, err
	}

	job, err := s.store.Create(ctx, &store.SyncJob{
		Owner:                 owner,
		WorkflowKind:          kind,
		SourceRegistry:        source.Registry,
		SourceRepository:      req.SourceImage,
		DestinationRegistry:   destination.Registry,
		DestinationRepository: req.DestinationImage,
		Status:                store.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist sync job: %w", err)
	}

	if err := s.dispatch(ctx, job, source, destination); err != nil {
		job.Status = store.StatusFailed
		job.ErrorMessage = err.Error()
		s.bestEffort("record dispatch failure", func() error {
			return s.store.Update(ctx, job)
		})
		return nil, fmt.Errorf("%w: %s", ErrDispatch, err)
	}

	now := time.Now().UTC()
	job.Status = store.StatusRunning
	job.StartedAt = &now
	if err := s.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update sync job: %w", err)
	}
	return job, nil
}

// Get fetches a job, reconciling it against the runner first when it is
// still running. Reconciliation failure never fails the read.
func (s *SyncService) Get(ctx context.Context, owner string, id uuid.UUID) (*store.SyncJob, error) {
	job, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.maybeReconcile(ctx, job)
	return job, nil
}

// List returns a page of the owner's jobs plus the total count for the
// filter, reconciling any running jobs on the way out.
func (s *SyncService) List(ctx context.Context, owner string, opts store.ListOptions) ([]*store.SyncJob, int64, error) {
	jobs, total, err := s.store.List(ctx, owner, opts)
	if err != nil {
		return nil, 0, err
	}
	for _, job := range jobs {
		s.maybeReconcile(ctx, job)
	}
	return jobs, total, nil
}

// Delete removes a job after confirming ownership. Removal is unconditional:
// a running job's external run keeps executing but is no longer tracked.
func (s *SyncService) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	if _, err := s.store.Get(ctx, owner, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, owner, id)
}

func determineKind(requested string, source imageref.ImageReference) (store.WorkflowKind, error) {
	var kind store.WorkflowKind
	switch requested {
	case "":
		kind = store.KindCopy
	case string(store.KindCopy):
		kind = store.KindCopy
	case string(store.KindSync):
		kind = store.KindSync
	default:
		return "", fmt.Errorf("%w: workflow kind must be %q or %q", ErrValidation, store.KindCopy, store.KindSync)
	}

	// An untagged source tracks latest/multiple tags unless copy was forced.
	if source.Tag == "" && requested != string(store.KindCopy) {
		kind = store.KindSync
	}
	return kind, nil
}

// dispatch triggers the kind-specific workflow and records the discovered
// run on the job. The runner does not return a run id synchronously, so the
// run is looked up afterwards; a run that never becomes visible does not
// fail the dispatch.
func (s *SyncService) dispatch(ctx context.Context, job *store.SyncJob, source, destination imageref.ImageReference) error {
	var workflowFile string
	var inputs map[string]string

	switch job.WorkflowKind {
	case store.KindCopy:
		workflowFile = s.workflows.GetCopyWorkflow()
		inputs = map[string]string{
			"source":           source.Registry,
			"destination":      destination.Registry,
			"source_repo":      imageref.Build(source, true),
			"destination_repo": imageref.Build(destination, true),
		}
	case store.KindSync:
		workflowFile = s.workflows.GetSyncWorkflow()
		destinationScope := destination.Scope
		if destinationScope == "" {
			destinationScope = destination.Repository
		}
		inputs = map[string]string{
			"source":            source.Registry,
			"destination":       destination.Registry,
			"source_repo":       imageref.Build(source, false),
			"destination_scope": destinationScope,
		}
	default:
		return fmt.Errorf("unknown workflow kind %q", job.WorkflowKind)
	}

	sinceID, err := runner.LatestRunID(ctx, s.runner, workflowFile)
	if err != nil {
		s.logger.Warn("failed to snapshot latest run before dispatch",
			"workflow", workflowFile, "error", err)
		sinceID = 0
	}

	if err := s.runner.Dispatch(ctx, workflowFile, s.workflows.GetRef(), inputs); err != nil {
		return err
	}

	run, err := runner.DiscoverNewRun(ctx, s.runner, workflowFile, sinceID, s.discoverOpts...)
	if err != nil {
		s.logger.Warn("failed to discover dispatched run",
			"workflow", workflowFile, "error", err)
		return nil
	}
	if run == nil {
		s.logger.Info("dispatched run not visible yet", "workflow", workflowFile, "job_id", job.ID)
		return nil
	}

	job.ExternalRunID = strconv.FormatInt(run.ID, 10)
	job.ExternalRunNumber = run.RunNumber
	return nil
}

// maybeReconcile polls the runner for a running job and applies the terminal
// state if the run completed. Failures are logged and swallowed.
func (s *SyncService) maybeReconcile(ctx context.Context, job *store.SyncJob) {
	if job.Status != store.StatusRunning || job.ExternalRunID == "" {
		return
	}
	s.bestEffort("reconcile sync job", func() error {
		return s.reconcile(ctx, job)
	})
}

func (s *SyncService) reconcile(ctx context.Context, job *store.SyncJob) error {
	runID, err := strconv.ParseInt(job.ExternalRunID, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed external run id %q: %w", job.ExternalRunID, err)
	}

	run, err := s.runner.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != runner.StatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	if run.Conclusion == "success" {
		job.Status = store.StatusSuccess
	} else {
		job.Status = store.StatusFailed
	}
	job.Conclusion = run.Conclusion
	job.CompletedAt = &now
	job.LogsURL = run.URL

	// Writing the same terminal state twice is harmless, so concurrent
	// reconciliations of one job need no coordination.
	if err := s.store.Update(ctx, job); err != nil {
		return err
	}

	if job.Status == store.StatusSuccess {
		s.bestEffort("prune superseded jobs", func() error {
			removed, err := s.store.DeleteSuperseded(ctx, job.Owner, job.SourceRepository, job.ID)
			if err != nil {
				return err
			}
			if removed > 0 {
				s.logger.Info("pruned superseded sync jobs",
					"owner", job.Owner, "source", job.SourceRepository, "removed", removed)
			}
			return nil
		})
	}
	return nil
}

// bestEffort runs a side operation whose failure must never propagate into
// the caller's response.
func (s *SyncService) bestEffort(op string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("best-effort operation failed", "op", op, "error", err)
	}
}
