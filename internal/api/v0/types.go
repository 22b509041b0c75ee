package v0

import (
	"time"

	"github.com/regbridge/regbridge/internal/store"
)

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateSyncRequest is the body of POST /syncs.
type CreateSyncRequest struct {
	SourceImage      string `json:"source_image"`
	DestinationImage string `json:"destination_image"`
	WorkflowType     string `json:"workflow_type,omitempty"`
}

// SyncJob is the wire representation of a sync job.
type SyncJob struct {
	ID                  string     `json:"id"`
	WorkflowType        string     `json:"workflow_type"`
	SourceRegistry      string     `json:"source_registry"`
	SourceRepo          string     `json:"source_repo"`
	DestinationRegistry string     `json:"destination_registry"`
	DestinationRepo     string     `json:"destination_repo"`
	RunID               string     `json:"run_id,omitempty"`
	RunNumber           int64      `json:"run_number,omitempty"`
	Status              string     `json:"status"`
	Conclusion          string     `json:"conclusion,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	LogsURL             string     `json:"logs_url,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// SyncJobData wraps a single job response.
type SyncJobData struct {
	Job SyncJob `json:"job"`
}

// SyncJobListData wraps a listing page with its total row count.
type SyncJobListData struct {
	Jobs  []SyncJob `json:"jobs"`
	Total int64     `json:"total"`
}

func newSyncJob(job *store.SyncJob) SyncJob {
	return SyncJob{
		ID:                  job.ID.String(),
		WorkflowType:        string(job.WorkflowKind),
		SourceRegistry:      job.SourceRegistry,
		SourceRepo:          job.SourceRepository,
		DestinationRegistry: job.DestinationRegistry,
		DestinationRepo:     job.DestinationRepository,
		RunID:               job.ExternalRunID,
		RunNumber:           job.ExternalRunNumber,
		Status:              string(job.Status),
		Conclusion:          job.Conclusion,
		ErrorMessage:        job.ErrorMessage,
		LogsURL:             job.LogsURL,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
	}
}
