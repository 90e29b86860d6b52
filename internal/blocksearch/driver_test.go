package blocksearch

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(prices ...float64) []Candidate {
	out := make([]Candidate, len(prices))
	for i, p := range prices {
		out[i] = Candidate{
			Title:    "produto",
			Price:    decimal.NewFromFloat(p),
			Position: i,
		}
	}
	// Distinct titles so keys differ even on equal prices.
	for i := range out {
		out[i].Title = out[i].Title + "-" + out[i].Price.StringFixed(2) + "-" + string(rune('a'+i))
	}
	return out
}

func acceptAll(Candidate) (bool, error) { return true, nil }

func TestTrivialThreeSourceWin(t *testing.T) {
	pool := candidates(100, 102, 104, 110, 125, 130, 140, 150, 160, 170)
	probed := 0
	probe := func(c Candidate) (bool, error) {
		probed++
		return true, nil
	}

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	require.Len(t, res.Accepted, 3)
	assert.Equal(t, "100.00", res.Accepted[0].Price.StringFixed(2))
	assert.Equal(t, "102.00", res.Accepted[1].Price.StringFixed(2))
	assert.Equal(t, "104.00", res.Accepted[2].Price.StringFixed(2))
	assert.Equal(t, 3, probed, "probing stops once the block holds N")
	assert.Equal(t, 0, res.ToleranceIncreases)
	assert.InDelta(t, 0.25, res.FinalVariation, 1e-9)
}

func TestWideBlockFoundWithoutEscalationWhenExpensiveTrioCoheres(t *testing.T) {
	// The cheap candidates never form a size-3 block, but {200,220,225}
	// coheres within the initial 25% window: blocks are formed from
	// every starting index, so no escalation is needed.
	pool := candidates(100, 150, 200, 220, 225)

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	require.Len(t, res.Accepted, 3)
	assert.Equal(t, "200.00", res.Accepted[0].Price.StringFixed(2))
	assert.Equal(t, "225.00", res.Accepted[2].Price.StringFixed(2))
}

func TestSingleEscalationRequired(t *testing.T) {
	// No size-3 block exists at 25% from any start; one widening to
	// 30% admits the whole pool.
	pool := candidates(100, 128, 130)

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, 1, res.ToleranceIncreases)
	assert.InDelta(t, 0.30, res.FinalVariation, 1e-9)
	require.Len(t, res.Accepted, 3)
}

func TestEscalationExhaustedYieldsBestEffort(t *testing.T) {
	// Max gap everywhere: even at eps0+5*0.05 no size-2 block forms.
	pool := candidates(100, 200, 400)

	res, err := Run(pool, Params{Required: 2, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	assert.Equal(t, 5, res.ToleranceIncreases)
	assert.LessOrEqual(t, len(res.Accepted), 1)
}

func TestIdenticalPricesWholePoolIsFirstBlock(t *testing.T) {
	pool := candidates(50, 50, 50, 50)

	res, err := Run(pool, Params{Required: 4, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Len(t, res.Accepted, 4)
	// Deterministic order: aggregator insertion order on price ties.
	for i, c := range res.Accepted {
		assert.Equal(t, i, c.Position)
	}
}

func TestFailedCandidatesForceNextBlock(t *testing.T) {
	// The cheap block cannot reach 3 once two members fail; the search
	// must recompute and win with the expensive cluster.
	pool := candidates(100, 104, 108, 200, 205, 210)
	rejected := map[string]bool{"100.00": true, "104.00": true, "108.00": true}
	var failures int
	probe := func(c Candidate) (bool, error) {
		if rejected[c.Price.StringFixed(2)] {
			failures++
			return false, nil
		}
		return true, nil
	}

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	require.Len(t, res.Accepted, 3)
	assert.Equal(t, "200.00", res.Accepted[0].Price.StringFixed(2))
	assert.Equal(t, 3, failures)
}

func TestRequiredOneAcceptsSingleCandidate(t *testing.T) {
	pool := candidates(999)

	res, err := Run(pool, Params{Required: 1, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Len(t, res.Accepted, 1)
}

func TestEmptyPool(t *testing.T) {
	res, err := Run(nil, Params{Required: 3, InitialVariation: 0.25}, acceptAll, nil)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, res.Accepted)
}

func TestProbeErrorAborts(t *testing.T) {
	pool := candidates(100, 101, 102)
	boom := errors.New("cancelado")
	probe := func(Candidate) (bool, error) { return false, boom }

	_, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	assert.ErrorIs(t, err, boom)
}

func TestBlockCoherenceInvariant(t *testing.T) {
	pool := candidates(80, 95, 100, 118, 121, 140, 300)
	probe := func(c Candidate) (bool, error) {
		// Reject the two cheapest so the window must move.
		return c.Price.GreaterThan(decimal.NewFromInt(96)), nil
	}

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Accepted)

	min := res.Accepted[0].Price
	max := res.Accepted[len(res.Accepted)-1].Price
	ratio, _ := max.Div(min).Sub(decimal.NewFromInt(1)).Float64()
	assert.LessOrEqual(t, ratio, res.FinalVariation+1e-9,
		"accepted extremes must fit the attained variation window")
	assert.LessOrEqual(t, res.FinalVariation, 0.25+5*0.05+1e-9)
}

func TestHeartbeatInvokedPerIteration(t *testing.T) {
	pool := candidates(100, 102, 104)
	beats := 0

	_, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, acceptAll, func() { beats++ })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, beats, 3)
}

func TestReserveAndAlternativeBlock(t *testing.T) {
	// The cheap block ranks first, validates two members, then burns
	// its remainder. On the next pass it still ranks first but is
	// exhausted: the validated pair becomes the reserve and the large
	// expensive block is probed fresh, winning.
	pool := candidates(100, 103, 106, 120, 300, 306, 309, 312)
	rejected := map[string]bool{"106.00": true, "120.00": true}
	probe := func(c Candidate) (bool, error) {
		return !rejected[c.Price.StringFixed(2)], nil
	}

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.True(t, res.UsedReserve)
	require.Len(t, res.Accepted, 3)
	assert.Equal(t, "300.00", res.Accepted[0].Price.StringFixed(2))
}

func TestReserveRevertsWhenAlternativeFails(t *testing.T) {
	// Same shape, but the alternative block also fails: the run must
	// fall back to the reserved pair as the best-effort set.
	pool := candidates(100, 103, 106, 120, 300, 306, 309, 312)
	rejected := map[string]bool{
		"106.00": true, "120.00": true,
		"300.00": true, "306.00": true,
	}
	probe := func(c Candidate) (bool, error) {
		return !rejected[c.Price.StringFixed(2)], nil
	}

	res, err := Run(pool, Params{Required: 3, InitialVariation: 0.25}, probe, nil)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	assert.True(t, res.UsedReserve)
	require.NotEmpty(t, res.Accepted)
	assert.Equal(t, "100.00", res.Accepted[0].Price.StringFixed(2),
		"best-effort set comes from the reserved cheap block")
}

func TestRankBlocksPrefersSizeThenCheapAnchor(t *testing.T) {
	sorted := SortCandidates(candidates(10, 11, 100, 101, 102))
	ranked := RankBlocks(FormBlocks(sorted, 0.25))

	require.NotEmpty(t, ranked)
	assert.Equal(t, 3, len(ranked[0].Members))
	assert.Equal(t, "100.00", ranked[0].MinPrice().StringFixed(2))
}
