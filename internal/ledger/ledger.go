// Package ledger converts external-call usage into IntegrationLog and
// FinancialTransaction rows. Both tables are append-only; nothing here
// ever updates a written row.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

// Rates are the configured BRL unit costs.
type Rates struct {
	LLMInputPerMTok  decimal.Decimal
	LLMOutputPerMTok decimal.Decimal
	ShoppingPerCall  decimal.Decimal
	FipePerCall      decimal.Decimal
}

// NewRates builds the table from plain float configuration values.
func NewRates(llmIn, llmOut, shoppingCall, fipeCall float64) Rates {
	return Rates{
		LLMInputPerMTok:  decimal.NewFromFloat(llmIn),
		LLMOutputPerMTok: decimal.NewFromFloat(llmOut),
		ShoppingPerCall:  decimal.NewFromFloat(shoppingCall),
		FipePerCall:      decimal.NewFromFloat(fipeCall),
	}
}

var million = decimal.NewFromInt(1_000_000)

// LLMCost computes the BRL cost of a token ledger.
func (r Rates) LLMCost(l domain.TokenLedger) decimal.Decimal {
	in := decimal.NewFromInt(l.InputTokens).Mul(r.LLMInputPerMTok).Div(million)
	out := decimal.NewFromInt(l.OutputTokens).Mul(r.LLMOutputPerMTok).Div(million)
	return in.Add(out).Round(4)
}

// CallCost computes the BRL cost of n aggregator or FIPE calls.
func (r Rates) CallCost(kind domain.IntegrationKind, n int64) decimal.Decimal {
	unit := r.ShoppingPerCall
	if kind == domain.IntegrationFipe {
		unit = r.FipePerCall
	}
	return unit.Mul(decimal.NewFromInt(n)).Round(4)
}

// Recorder writes audit and cost rows attributed to one request.
type Recorder struct {
	repo  persistence.LedgerRepo
	rates Rates
}

// NewRecorder wires the recorder.
func NewRecorder(repo persistence.LedgerRepo, rates Rates) *Recorder {
	return &Recorder{repo: repo, rates: rates}
}

// RecordLLM logs one analysis run and books its token cost. A cost row
// is written only when tokens were actually spent.
func (rec *Recorder) RecordLLM(ctx context.Context, q *domain.QuoteRequest, activity string, l domain.TokenLedger) error {
	if err := rec.repo.InsertLog(ctx, &domain.IntegrationLog{
		QuoteRequestID: &q.ID,
		Kind:           domain.IntegrationLLM,
		Activity:       activity,
		InputTokens:    l.InputTokens,
		OutputTokens:   l.OutputTokens,
		Calls:          l.Calls,
	}); err != nil {
		return err
	}
	if l.TotalTokens == 0 {
		return nil
	}
	cost := rec.rates.LLMCost(l)
	return rec.repo.InsertTransaction(ctx, &domain.FinancialTransaction{
		QuoteRequestID: q.ID,
		ClientID:       q.ClientID,
		ProjectID:      q.ProjectID,
		Kind:           domain.IntegrationLLM,
		Units:          l.TotalTokens,
		UnitCostBRL:    rec.rates.LLMInputPerMTok.Div(million).Round(8),
		TotalCostBRL:   cost,
	})
}

// APICall is one sanitized aggregator or FIPE call to be audited.
type APICall struct {
	URL          string
	ProductTitle string
	StoreLink    string
	Activity     string
}

// RecordCalls persists the audit list of one run and books the call
// cost. URLs are expected to be pre-sanitized (no API keys).
func (rec *Recorder) RecordCalls(ctx context.Context, q *domain.QuoteRequest, kind domain.IntegrationKind, calls []APICall) error {
	for _, c := range calls {
		if err := rec.repo.InsertLog(ctx, &domain.IntegrationLog{
			QuoteRequestID: &q.ID,
			Kind:           kind,
			Activity:       c.Activity,
			URL:            c.URL,
			ProductTitle:   c.ProductTitle,
			StoreLink:      c.StoreLink,
			Calls:          1,
		}); err != nil {
			return err
		}
	}
	if len(calls) == 0 {
		return nil
	}
	n := int64(len(calls))
	unit := rec.rates.ShoppingPerCall
	if kind == domain.IntegrationFipe {
		unit = rec.rates.FipePerCall
	}
	err := rec.repo.InsertTransaction(ctx, &domain.FinancialTransaction{
		QuoteRequestID: q.ID,
		ClientID:       q.ClientID,
		ProjectID:      q.ProjectID,
		Kind:           kind,
		Units:          n,
		UnitCostBRL:    unit,
		TotalCostBRL:   rec.rates.CallCost(kind, n),
	})
	if err != nil {
		return err
	}
	log.Debug().
		Str("quote_id", q.ID.String()).
		Str("kind", string(kind)).
		Int64("calls", n).
		Msg("external call costs booked")
	return nil
}

// UUIDPtr is a small helper for attributing ad-hoc log rows.
func UUIDPtr(id uuid.UUID) *uuid.UUID { return &id }
