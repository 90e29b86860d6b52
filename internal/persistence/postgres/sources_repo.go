package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type sourcesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSourcesRepo creates the PostgreSQL source/failure repository.
func NewSourcesRepo(db *sqlx.DB, timeout time.Duration) persistence.SourcesRepo {
	return &sourcesRepo{db: db, timeout: timeout}
}

func (r *sourcesRepo) Insert(ctx context.Context, s *domain.QuoteSource) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO quote_sources (
			id, quote_request_id, url, domain, page_title, price, currency,
			extraction_method, screenshot_id, captured_at, is_outlier,
			is_accepted, failure_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.QuoteRequestID, s.URL, s.Domain, s.PageTitle, s.Price,
		s.Currency, s.Method, s.ScreenshotID, s.CapturedAt, s.IsOutlier,
		s.IsAccepted, s.FailureReason)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %v", persistence.ErrDuplicateSource, err)
		}
		return fmt.Errorf("failed to insert quote source: %w", err)
	}
	return nil
}

func (r *sourcesRepo) InsertFailure(ctx context.Context, f *domain.QuoteSourceFailure) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	query := `
		INSERT INTO quote_source_failures (
			id, quote_request_id, url, domain, product_title, google_price,
			reason, message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.QuoteRequestID, f.URL, f.Domain, f.ProductTitle,
		f.GooglePrice, f.Reason, f.Message)
	if err != nil {
		return fmt.Errorf("failed to insert source failure: %w", err)
	}
	return nil
}

const sourceColumns = `
	id, quote_request_id, url, domain, page_title, price, currency,
	extraction_method, screenshot_id, captured_at, is_outlier, is_accepted,
	failure_reason`

func (r *sourcesRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.QuoteSource, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.QuoteSource
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sourceColumns+`
		FROM quote_sources
		WHERE quote_request_id = $1
		ORDER BY captured_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quote sources: %w", err)
	}
	return out, nil
}

func (r *sourcesRepo) ListAccepted(ctx context.Context, requestID uuid.UUID) ([]domain.QuoteSource, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.QuoteSource
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sourceColumns+`
		FROM quote_sources
		WHERE quote_request_id = $1 AND is_accepted = true
		ORDER BY price`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted sources: %w", err)
	}
	return out, nil
}

func (r *sourcesRepo) ReconcileAccepted(ctx context.Context, requestID uuid.UUID, urls []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Sources validated outside the winning block are flipped off;
	// near-winners inside it are flipped on.
	if _, err := tx.ExecContext(ctx, `
		UPDATE quote_sources
		SET is_accepted = (url = ANY($2))
		WHERE quote_request_id = $1`, requestID, pq.Array(urls)); err != nil {
		return fmt.Errorf("failed to reconcile accepted sources: %w", err)
	}

	return tx.Commit()
}
