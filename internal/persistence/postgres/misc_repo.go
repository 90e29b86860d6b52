package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type filesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFilesRepo creates the blob descriptor repository.
func NewFilesRepo(db *sqlx.DB, timeout time.Duration) persistence.FilesRepo {
	return &filesRepo{db: db, timeout: timeout}
}

func (r *filesRepo) Insert(ctx context.Context, f *domain.File) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files (id, kind, mime, storage_path, sha256, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		f.ID, f.Kind, f.Mime, f.StoragePath, f.SHA256, f.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *filesRepo) Get(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var f domain.File
	err := r.db.GetContext(ctx, &f, `
		SELECT id, kind, mime, storage_path, sha256, size_bytes, created_at
		FROM files WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

type configRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewConfigRepo creates the frozen-snapshot repository.
func NewConfigRepo(db *sqlx.DB, timeout time.Duration) persistence.ConfigRepo {
	return &configRepo{db: db, timeout: timeout}
}

const configColumns = `
	id, project_id, version, created_at, number_of_quotes,
	max_variation_percent, enable_price_mismatch, search_location,
	search_language, search_country, enable_spec_extraction,
	enable_spec_validation, enable_linear_meter`

func (r *configRepo) GetVersion(ctx context.Context, id uuid.UUID) (*domain.ProjectConfigVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var v domain.ProjectConfigVersion
	err := r.db.GetContext(ctx, &v, `
		SELECT `+configColumns+` FROM project_config_versions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get config version: %w", err)
	}
	return &v, nil
}

func (r *configRepo) LatestForProject(ctx context.Context, projectID *uuid.UUID) (*domain.ProjectConfigVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var v domain.ProjectConfigVersion
	err := r.db.GetContext(ctx, &v, `
		SELECT `+configColumns+`
		FROM project_config_versions
		WHERE project_id IS NOT DISTINCT FROM $1
		ORDER BY version DESC
		LIMIT 1`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest config version: %w", err)
	}
	return &v, nil
}

func (r *configRepo) CreateVersion(ctx context.Context, v *domain.ProjectConfigVersion) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_config_versions (
			id, project_id, version, number_of_quotes, max_variation_percent,
			enable_price_mismatch, search_location, search_language,
			search_country, enable_spec_extraction, enable_spec_validation,
			enable_linear_meter
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		v.ID, v.ProjectID, v.Version, v.NumberOfQuotes, v.MaxVariationPercent,
		v.PriceMismatchCheck, v.SearchLocation, v.SearchLanguage,
		v.SearchCountry, v.EnableSpecExtraction, v.EnableSpecValidation,
		v.EnableLinearMeter)
	if err != nil {
		return fmt.Errorf("failed to create config version: %w", err)
	}
	return nil
}

type batchRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBatchRepo creates the batch job repository.
func NewBatchRepo(db *sqlx.DB, timeout time.Duration) persistence.BatchRepo {
	return &batchRepo{db: db, timeout: timeout}
}

const batchColumns = `
	id, project_id, status, total_count, completed_count, failed_count,
	created_at, updated_at`

func (r *batchRepo) Get(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var b domain.BatchJob
	err := r.db.GetContext(ctx, &b, `
		SELECT `+batchColumns+` FROM batch_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return &b, nil
}

func (r *batchRepo) Create(ctx context.Context, b *domain.BatchJob) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, project_id, status, total_count, completed_count, failed_count)
		VALUES ($1,$2,$3,$4,0,0)`,
		b.ID, b.ProjectID, domain.BatchProcessing, b.TotalCount)
	if err != nil {
		return fmt.Errorf("failed to create batch job: %w", err)
	}
	return nil
}

func (r *batchRepo) Recompute(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// One statement recounts children and assigns the final status the
	// moment completed+failed reaches total; concurrent child
	// transitions serialize on the row lock.
	query := `
		UPDATE batch_jobs b
		SET completed_count = c.done,
		    failed_count = c.failed,
		    status = CASE
		        WHEN c.done + c.failed >= b.total_count AND c.failed = 0 THEN 'COMPLETED'
		        WHEN c.done + c.failed >= b.total_count THEN 'PARTIALLY_COMPLETED'
		        ELSE b.status
		    END,
		    updated_at = now()
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status IN ('DONE','AWAITING_REVIEW')) AS done,
				COUNT(*) FILTER (WHERE status IN ('ERROR','CANCELLED')) AS failed
			FROM quote_requests WHERE batch_job_id = $1
		) c
		WHERE b.id = $1
		RETURNING b.id, b.project_id, b.status, b.total_count,
		          b.completed_count, b.failed_count, b.created_at, b.updated_at`

	var b domain.BatchJob
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, fmt.Errorf("failed to recompute batch counters: %w", err)
	}
	return &b, nil
}

type blockedRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBlockedRepo creates the blocked-domain configuration repository.
func NewBlockedRepo(db *sqlx.DB, timeout time.Duration) persistence.BlockedRepo {
	return &blockedRepo{db: db, timeout: timeout}
}

func (r *blockedRepo) LoadAll(ctx context.Context) ([]domain.BlockedDomain, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.BlockedDomain
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, source_label, domain, created_at
		FROM blocked_domains
		ORDER BY source_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocked domains: %w", err)
	}
	return out, nil
}
