package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regbridge/regbridge/internal/config"
)

const (
	defaultMaxConns        = 25
	defaultConnMaxLifetime = 5 * time.Minute
)

const jobColumns = `id, owner_id, workflow_kind, source_registry, source_repository,
	destination_registry, destination_repository,
	COALESCE(external_run_id, ''), COALESCE(external_run_number, 0),
	status, COALESCE(conclusion, ''), COALESCE(error_message, ''), COALESCE(logs_url, ''),
	created_at, started_at, completed_at`

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool from the given database
// configuration and verifies connectivity. The caller owns Close.
func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connString, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	poolCfg.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		poolCfg.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool. The caller keeps
// ownership of the pool's lifecycle.
func NewPostgresStoreWithPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the backing connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create persists a new job and returns it with generated fields populated.
func (s *PostgresStore) Create(ctx context.Context, job *SyncJob) (*SyncJob, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_jobs (
			owner_id, workflow_kind, source_registry, source_repository,
			destination_registry, destination_repository, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+jobColumns,
		job.Owner, job.WorkflowKind, job.SourceRegistry, job.SourceRepository,
		job.DestinationRegistry, job.DestinationRepository, job.Status,
	)

	created, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	return created, nil
}

// Get fetches a job by id scoped to owner.
func (s *PostgresStore) Get(ctx context.Context, owner string, id uuid.UUID) (*SyncJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1 AND owner_id = $2`,
		id, owner,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return job, nil
}

// List returns a page of the owner's jobs, newest first, with the total row
// count for the filter.
func (s *PostgresStore) List(ctx context.Context, owner string, opts ListOptions) ([]*SyncJob, int64, error) {
	where := []string{"owner_id = $1"}
	args := []any{owner}

	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		where = append(where, fmt.Sprintf("source_repository ILIKE $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sync_jobs WHERE `+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE ` + whereClause +
		` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read sync jobs: %w", err)
	}

	return jobs, total, nil
}

// Update overwrites the mutable fields of a job, scoped by owner and id.
// Writing the same terminal state twice is a no-op by construction, which
// keeps concurrent reconciliation idempotent.
func (s *PostgresStore) Update(ctx context.Context, job *SyncJob) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_jobs SET
			external_run_id = NULLIF($3, ''),
			external_run_number = NULLIF($4, 0),
			status = $5,
			conclusion = NULLIF($6, ''),
			error_message = NULLIF($7, ''),
			logs_url = NULLIF($8, ''),
			started_at = $9,
			completed_at = $10
		WHERE id = $1 AND owner_id = $2`,
		job.ID, job.Owner,
		job.ExternalRunID, job.ExternalRunNumber,
		job.Status, job.Conclusion, job.ErrorMessage, job.LogsURL,
		job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a job scoped by owner and id.
func (s *PostgresStore) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sync_jobs WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSuperseded removes the owner's other successful jobs for the same
// source repository string, keeping only keep.
func (s *PostgresStore) DeleteSuperseded(
	ctx context.Context, owner, sourceRepository string, keep uuid.UUID,
) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sync_jobs
		WHERE owner_id = $1 AND source_repository = $2 AND status = $3 AND id <> $4`,
		owner, sourceRepository, StatusSuccess, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete superseded sync jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*SyncJob, error) {
	var job SyncJob
	err := row.Scan(
		&job.ID, &job.Owner, &job.WorkflowKind,
		&job.SourceRegistry, &job.SourceRepository,
		&job.DestinationRegistry, &job.DestinationRepository,
		&job.ExternalRunID, &job.ExternalRunNumber,
		&job.Status, &job.Conclusion, &job.ErrorMessage, &job.LogsURL,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
