package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedgerRepo creates the append-only audit and cost repository.
func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerRepo {
	return &ledgerRepo{db: db, timeout: timeout}
}

func (r *ledgerRepo) InsertLog(ctx context.Context, l *domain.IntegrationLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO integration_logs (
			id, quote_request_id, kind, activity, url, product_title,
			store_link, input_tokens, output_tokens, calls
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.QuoteRequestID, l.Kind, l.Activity, l.URL, l.ProductTitle,
		l.StoreLink, l.InputTokens, l.OutputTokens, l.Calls)
	if err != nil {
		return fmt.Errorf("failed to insert integration log: %w", err)
	}
	return nil
}

func (r *ledgerRepo) InsertTransaction(ctx context.Context, t *domain.FinancialTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	// No UPDATE or DELETE path exists for this table.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO financial_transactions (
			id, quote_request_id, client_id, project_id, kind, units,
			unit_cost_brl, total_cost_brl
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.QuoteRequestID, t.ClientID, t.ProjectID, t.Kind, t.Units,
		t.UnitCostBRL, t.TotalCostBRL)
	if err != nil {
		return fmt.Errorf("failed to insert financial transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepo) CountLogs(ctx context.Context, requestID uuid.UUID, kind domain.IntegrationKind) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM integration_logs
		WHERE quote_request_id = $1 AND kind = $2`, requestID, kind).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count integration logs: %w", err)
	}
	return count, nil
}

func (r *ledgerRepo) SumCosts(ctx context.Context, requestID uuid.UUID) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var sum decimal.Decimal
	err := r.db.QueryRowxContext(ctx, `
		SELECT COALESCE(SUM(total_cost_brl), 0) FROM financial_transactions
		WHERE quote_request_id = $1`, requestID).
		Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum costs: %w", err)
	}
	return sum, nil
}
