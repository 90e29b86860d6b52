package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysisShopping(t *testing.T) {
	raw := []byte(`{
		"tipo_processamento": "GOOGLE_SHOPPING",
		"nome_canonico": "Cadeira giratória presidente",
		"query_principal": "cadeira giratória presidente couro",
		"queries_alternativas": ["cadeira presidente escritório"],
		"token_ledger": {"input_tokens": 900, "output_tokens": 200, "total_tokens": 1100, "calls": 1}
	}`)

	a, err := ParseAnalysis(raw)
	require.NoError(t, err)
	assert.Equal(t, ProcessingShopping, a.ProcessingType)
	assert.Equal(t, "Cadeira giratória presidente", a.CanonicalName)
	assert.JSONEq(t, string(raw), string(a.Raw))

	q, err := a.ShoppingQuery()
	require.NoError(t, err)
	assert.Equal(t, "cadeira giratória presidente couro", q)
}

func TestParseAnalysisFipeRequiresVehicle(t *testing.T) {
	_, err := ParseAnalysis([]byte(`{
		"tipo_processamento": "FIPE",
		"nome_canonico": "VW Gol 1.0 2020"
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "veículo")
}

func TestParseAnalysisRejectsUnknownType(t *testing.T) {
	_, err := ParseAnalysis([]byte(`{
		"tipo_processamento": "EBAY",
		"nome_canonico": "x"
	}`))
	require.Error(t, err)
}

func TestShoppingQueryEmpty(t *testing.T) {
	a := &Analysis{PrimaryQuery: "   "}
	_, err := a.ShoppingQuery()
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFallbackQuery(t *testing.T) {
	withQuery := &Analysis{PrimaryQuery: "gol 1.0 2020"}
	q, ok := withQuery.FallbackQuery()
	require.True(t, ok)
	assert.Equal(t, "gol 1.0 2020", q)

	fromVehicle := &Analysis{Vehicle: &VehicleParams{Brand: "Volkswagen", Model: "Gol 1.0"}}
	q, ok = fromVehicle.FallbackQuery()
	require.True(t, ok)
	assert.Equal(t, "Volkswagen Gol 1.0", q)

	_, ok = (&Analysis{}).FallbackQuery()
	assert.False(t, ok)
}

func TestTokenLedgerAdd(t *testing.T) {
	var l TokenLedger
	l.Add(900, 200)
	l.Add(100, 50)
	assert.Equal(t, int64(1000), l.InputTokens)
	assert.Equal(t, int64(250), l.OutputTokens)
	assert.Equal(t, int64(1250), l.TotalTokens)
	assert.Equal(t, 2, l.Calls)
}
