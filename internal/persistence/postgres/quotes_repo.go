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

// ErrNotFound aliases the shared sentinel so callers can match on
// either package.
var ErrNotFound = persistence.ErrNotFound

const quoteColumns = `
	id, created_at, updated_at, input_text, input_type, input_images, project_id, client_id,
	config_version_id, batch_job_id, original_quote_id, attempt_number,
	codigo_item, local, pesquisador, status, error_message,
	progress_step, progress_percent, progress_detail,
	claude_payload_json, google_shopping_response_json,
	checkpoint, checkpoint_payload,
	worker_id, started_at, completed_at, last_heartbeat,
	mean_price, min_price, max_price, spread_percent`

type quotesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewQuotesRepo creates the PostgreSQL QuoteRequest repository.
func NewQuotesRepo(db *sqlx.DB, timeout time.Duration) persistence.QuotesRepo {
	return &quotesRepo{db: db, timeout: timeout}
}

func (r *quotesRepo) Get(ctx context.Context, id uuid.UUID) (*domain.QuoteRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var q domain.QuoteRequest
	err := r.db.GetContext(ctx, &q,
		`SELECT `+quoteColumns+` FROM quote_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quote request: %w", err)
	}
	return &q, nil
}

func (r *quotesRepo) Create(ctx context.Context, q *domain.QuoteRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	query := `
		INSERT INTO quote_requests (
			id, input_text, input_type, input_images, project_id, client_id,
			config_version_id, batch_job_id, original_quote_id, attempt_number,
			codigo_item, local, pesquisador, status, progress_step,
			progress_percent, progress_detail, checkpoint
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		q.ID, q.InputText, q.InputType, q.InputImages, q.ProjectID, q.ClientID,
		q.ConfigVersionID, q.BatchJobID, q.OriginalQuoteID, q.AttemptNumber,
		q.CodigoItem, q.Local, q.Pesquisador, domain.StatusProcessing,
		domain.StepClaim, 0, "", domain.CheckpointInit).
		Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert quote request: %w", err)
	}
	q.Status = domain.StatusProcessing
	return nil
}

func (r *quotesRepo) Claim(ctx context.Context, id uuid.UUID, workerID string, liveness time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Single conditional UPDATE: the lease is ours iff exactly one row
	// changed. A stale heartbeat makes the previous claim stealable.
	query := `
		UPDATE quote_requests
		SET worker_id = $2,
		    started_at = COALESCE(started_at, now()),
		    last_heartbeat = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PROCESSING'
		  AND (worker_id IS NULL
		       OR last_heartbeat IS NULL
		       OR last_heartbeat < now() - ($3 * interval '1 second'))`

	res, err := r.db.ExecContext(ctx, query, id, workerID, liveness.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to claim quote request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

func (r *quotesRepo) Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE quote_requests SET last_heartbeat = now() WHERE id = $1 AND worker_id = $2`,
		id, workerID)
	if err != nil {
		return fmt.Errorf("failed to refresh heartbeat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read heartbeat result: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("lease perdido para a cotação %s", id)
	}
	return nil
}

func (r *quotesRepo) NextClaimable(ctx context.Context, liveness time.Duration) (*domain.QuoteRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var q domain.QuoteRequest
	err := r.db.GetContext(ctx, &q, `
		SELECT `+quoteColumns+`
		FROM quote_requests
		WHERE status = 'PROCESSING'
		  AND (worker_id IS NULL
		       OR last_heartbeat IS NULL
		       OR last_heartbeat < now() - ($1 * interval '1 second'))
		ORDER BY created_at
		LIMIT 1`, liveness.Seconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claimable request: %w", err)
	}
	return &q, nil
}

func (r *quotesRepo) CurrentStatus(ctx context.Context, id uuid.UUID) (domain.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var status domain.Status
	err := r.db.QueryRowxContext(ctx,
		`SELECT status FROM quote_requests WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	return status, nil
}

func (r *quotesRepo) SetProgress(ctx context.Context, id uuid.UUID, step domain.ProgressStep, percent int, detail string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// GREATEST keeps the reported percentage monotonic even when a
	// resumed run replays an earlier step.
	_, err := r.db.ExecContext(ctx, `
		UPDATE quote_requests
		SET progress_step = $2,
		    progress_percent = GREATEST(progress_percent, $3),
		    progress_detail = $4,
		    updated_at = now()
		WHERE id = $1`, id, step, percent, detail)
	if err != nil {
		return fmt.Errorf("failed to set progress: %w", err)
	}
	return nil
}

func (r *quotesRepo) SetCheckpoint(ctx context.Context, id uuid.UUID, tag domain.CheckpointTag, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quote_requests
		SET checkpoint = $2, checkpoint_payload = $3, last_heartbeat = now(), updated_at = now()
		WHERE id = $1`, id, tag, payload)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

func (r *quotesRepo) SaveAnalysis(ctx context.Context, id uuid.UUID, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quote_requests
		SET claude_payload_json = $2, updated_at = now()
		WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("failed to save analysis payload: %w", err)
	}
	return nil
}

func (r *quotesRepo) SaveShoppingResponse(ctx context.Context, id uuid.UUID, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quote_requests
		SET google_shopping_response_json = $2, updated_at = now()
		WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("failed to save shopping response: %w", err)
	}
	return nil
}

func (r *quotesRepo) SetAggregates(ctx context.Context, id uuid.UUID, agg domain.Aggregates) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quote_requests
		SET mean_price = $2, min_price = $3, max_price = $4, spread_percent = $5, updated_at = now()
		WHERE id = $1`, id, agg.Mean, agg.Min, agg.Max, agg.SpreadPercent)
	if err != nil {
		return fmt.Errorf("failed to set aggregates: %w", err)
	}
	return nil
}

func (r *quotesRepo) Finish(ctx context.Context, id uuid.UUID, status domain.Status, errorMessage *string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag := domain.CheckpointCompleted
	if status == domain.StatusError {
		tag = domain.CheckpointFailed
	}
	// Terminal assignment happens exactly once and never overwrites a
	// sticky user cancel.
	query := `
		UPDATE quote_requests
		SET status = $2, error_message = $3, checkpoint = $4,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'`

	res, err := r.db.ExecContext(ctx, query, id, status, errorMessage, tag)
	if err != nil {
		return false, fmt.Errorf("failed to finish quote request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read finish result: %w", err)
	}
	return n == 1, nil
}

func (r *quotesRepo) HasChild(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM quote_requests WHERE original_quote_id = $1)`, id).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check requote child: %w", err)
	}
	return exists, nil
}

func (r *quotesRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.QuoteRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.QuoteRequest
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+quoteColumns+`
		FROM quote_requests
		WHERE batch_job_id = $1
		ORDER BY created_at`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch children: %w", err)
	}
	return out, nil
}
