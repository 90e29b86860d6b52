package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type memLedger struct {
	persistence.LedgerRepo
	logs []domain.IntegrationLog
	txns []domain.FinancialTransaction
}

func (m *memLedger) InsertLog(_ context.Context, l *domain.IntegrationLog) error {
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memLedger) InsertTransaction(_ context.Context, t *domain.FinancialTransaction) error {
	m.txns = append(m.txns, *t)
	return nil
}

func testRates() Rates { return NewRates(15, 75, 0.05, 0.01) }

func TestLLMCost(t *testing.T) {
	cost := testRates().LLMCost(domain.TokenLedger{InputTokens: 1_000_000, OutputTokens: 100_000})
	// 1M in * R$15/MTok + 100k out * R$75/MTok = 15 + 7.50
	assert.True(t, cost.Equal(decimal.RequireFromString("22.5")), "got %s", cost)
}

func TestCallCostByKind(t *testing.T) {
	r := testRates()
	assert.True(t, r.CallCost(domain.IntegrationShopping, 4).Equal(decimal.RequireFromString("0.2")))
	assert.True(t, r.CallCost(domain.IntegrationFipe, 4).Equal(decimal.RequireFromString("0.04")))
}

func TestRecordLLMBooksLogAndCost(t *testing.T) {
	repo := &memLedger{}
	rec := NewRecorder(repo, testRates())
	q := &domain.QuoteRequest{ID: uuid.New()}

	err := rec.RecordLLM(context.Background(), q, "analise_item",
		domain.TokenLedger{InputTokens: 900, OutputTokens: 200, TotalTokens: 1100, Calls: 1})
	require.NoError(t, err)

	require.Len(t, repo.logs, 1)
	assert.Equal(t, domain.IntegrationLLM, repo.logs[0].Kind)
	assert.Equal(t, "analise_item", repo.logs[0].Activity)
	assert.Equal(t, int64(900), repo.logs[0].InputTokens)

	require.Len(t, repo.txns, 1)
	assert.Equal(t, int64(1100), repo.txns[0].Units)
	assert.True(t, repo.txns[0].TotalCostBRL.IsPositive())
}

func TestRecordLLMZeroTokensSkipsCost(t *testing.T) {
	repo := &memLedger{}
	rec := NewRecorder(repo, testRates())
	q := &domain.QuoteRequest{ID: uuid.New()}

	require.NoError(t, rec.RecordLLM(context.Background(), q, "analise_item", domain.TokenLedger{}))
	assert.Len(t, repo.logs, 1, "audit row is always written")
	assert.Empty(t, repo.txns, "no spend, no cost row")
}

func TestRecordCalls(t *testing.T) {
	repo := &memLedger{}
	rec := NewRecorder(repo, testRates())
	q := &domain.QuoteRequest{ID: uuid.New()}

	err := rec.RecordCalls(context.Background(), q, domain.IntegrationShopping, []APICall{
		{URL: "https://serpapi.com/search?api_key=REDACTED", Activity: "busca_shopping"},
		{URL: "https://serpapi.com/product?api_key=REDACTED", Activity: "resolucao_loja", ProductTitle: "Cadeira"},
	})
	require.NoError(t, err)

	require.Len(t, repo.logs, 2)
	assert.Equal(t, 1, repo.logs[0].Calls)
	require.Len(t, repo.txns, 1)
	assert.Equal(t, int64(2), repo.txns[0].Units)
	assert.True(t, repo.txns[0].TotalCostBRL.Equal(decimal.RequireFromString("0.1")))
}

func TestRecordCallsEmptyWritesNothing(t *testing.T) {
	repo := &memLedger{}
	rec := NewRecorder(repo, testRates())
	q := &domain.QuoteRequest{ID: uuid.New()}

	require.NoError(t, rec.RecordCalls(context.Background(), q, domain.IntegrationFipe, nil))
	assert.Empty(t, repo.logs)
	assert.Empty(t, repo.txns)
}
