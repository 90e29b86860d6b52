package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeAggregates(t *testing.T) {
	agg, ok := ComputeAggregates([]decimal.Decimal{d("100"), d("110"), d("96")})
	require.True(t, ok)
	assert.True(t, agg.Mean.Equal(d("102")), "mean %s", agg.Mean)
	assert.True(t, agg.Min.Equal(d("96")))
	assert.True(t, agg.Max.Equal(d("110")))
	// (110/96 - 1) * 100, rounded to cents.
	assert.True(t, agg.SpreadPercent.Equal(d("14.58")), "spread %s", agg.SpreadPercent)
}

func TestComputeAggregatesSingle(t *testing.T) {
	agg, ok := ComputeAggregates([]decimal.Decimal{d("45230")})
	require.True(t, ok)
	assert.True(t, agg.Mean.Equal(d("45230")))
	assert.True(t, agg.SpreadPercent.IsZero())
}

func TestComputeAggregatesEmpty(t *testing.T) {
	_, ok := ComputeAggregates(nil)
	assert.False(t, ok)
}

func TestTerminalStatus(t *testing.T) {
	assert.Equal(t, StatusDone, TerminalStatus(3, 3))
	assert.Equal(t, StatusDone, TerminalStatus(4, 3))
	assert.Equal(t, StatusAwaitingReview, TerminalStatus(2, 3))
	assert.Equal(t, StatusError, TerminalStatus(0, 3))
}

func TestRequoteRootCollapses(t *testing.T) {
	root := uuid.New()
	orig := &QuoteRequest{ID: root}
	assert.Equal(t, root, RequoteRoot(orig))

	child := &QuoteRequest{ID: uuid.New(), OriginalQuoteID: &root}
	assert.Equal(t, root, RequoteRoot(child), "grandchild must point at the root, not the parent")
}

func TestCheckpointOrder(t *testing.T) {
	assert.True(t, CheckpointInit.Before(CheckpointAnalysisStart))
	assert.True(t, CheckpointSearchDone.Before(CheckpointExtractionStart))
	assert.False(t, CheckpointCompleted.Before(CheckpointFailed))
	assert.False(t, CheckpointFinalization.Before(CheckpointInit))
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusError, StatusCancelled, StatusAwaitingReview} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StatusProcessing.Terminal())
}

func TestParseBRL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"R$ 1.234,56", "1234.56"},
		{"R$ 2.199,00", "2199.00"},
		{"1234.56", "1234.56"},
		{"899,90 à vista", "899.90"},
		{"R$ 3.150,10", "3150.10"},
	}
	for _, tc := range cases {
		got, ok := ParseBRL(tc.in)
		require.True(t, ok, tc.in)
		assert.True(t, got.Equal(d(tc.want)), "%s -> %s", tc.in, got)
	}

	for _, bad := range []string{"", "R$", "grátis", "R$ -10,00", "0"} {
		_, ok := ParseBRL(bad)
		assert.False(t, ok, bad)
	}
}
