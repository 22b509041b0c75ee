// Package store persists sync jobs and serves owner-scoped queries over
// their history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job does not exist or is not owned by the
// requesting user. The two cases are indistinguishable on purpose.
var ErrNotFound = errors.New("sync job not found")

// WorkflowKind selects the workflow performing the transfer.
type WorkflowKind string

const (
	// KindCopy copies a single tagged artifact.
	KindCopy WorkflowKind = "copy"

	// KindSync mirrors a namespace, tracking multiple tags.
	KindSync WorkflowKind = "sync"
)

// Status is the lifecycle state of a sync job.
type Status string

const (
	// StatusPending is set at submission, before dispatch.
	StatusPending Status = "pending"

	// StatusRunning is set once dispatch succeeds.
	StatusRunning Status = "running"

	// StatusSuccess is terminal.
	StatusSuccess Status = "success"

	// StatusFailed is terminal.
	StatusFailed Status = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// SyncJob is a single image copy/sync request and its external run state.
// Optional string fields use the empty string for absence; optional
// timestamps use nil.
type SyncJob struct {
	ID                    uuid.UUID
	Owner                 string
	WorkflowKind          WorkflowKind
	SourceRegistry        string
	SourceRepository      string
	DestinationRegistry   string
	DestinationRepository string
	ExternalRunID         string
	ExternalRunNumber     int64
	Status                Status
	Conclusion            string
	ErrorMessage          string
	LogsURL               string
	CreatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
}

// ListOptions filter and page a listing. Limit of zero means no cap.
type ListOptions struct {
	// Status filters on exact status match when non-empty.
	Status Status

	// Search matches case-insensitively against the stored source
	// repository string.
	Search string

	Limit  int
	Offset int
}

// Store is the persistence boundary for sync jobs. Every read and write is
// scoped by owner identity; there is no cross-user visibility.
type Store interface {
	// Create persists a new job and returns it with its generated id and
	// creation timestamp populated.
	Create(ctx context.Context, job *SyncJob) (*SyncJob, error)

	// Get fetches a job by id for the given owner. Returns ErrNotFound when
	// absent or owned by someone else.
	Get(ctx context.Context, owner string, id uuid.UUID) (*SyncJob, error)

	// List returns a page of the owner's jobs ordered by creation time
	// descending, along with the total row count for the filter.
	List(ctx context.Context, owner string, opts ListOptions) ([]*SyncJob, int64, error)

	// Update overwrites the mutable fields of a job, scoped by its owner and
	// id. Returns ErrNotFound when no row matches.
	Update(ctx context.Context, job *SyncJob) error

	// Delete removes a job. Returns ErrNotFound when no row matches.
	Delete(ctx context.Context, owner string, id uuid.UUID) error

	// DeleteSuperseded removes the owner's other successful jobs for the
	// same source repository string, keeping only the job identified by
	// keep. Returns the number of rows removed.
	DeleteSuperseded(ctx context.Context, owner, sourceRepository string, keep uuid.UUID) (int64, error)

	// Ping verifies the backing connection is alive.
	Ping(ctx context.Context) error
}
