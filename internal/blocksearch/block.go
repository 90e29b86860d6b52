// Package blocksearch implements the single-block price-coherence
// search: selecting N validated sources whose prices lie within one
// contiguous window of a price-sorted candidate pool, escalating the
// window width in fixed steps when no block can be satisfied.
//
// The package is pure: probing a candidate is delegated to a callback,
// and all running state (validated and failed keys) is explicit.
package blocksearch

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Key identifies a product across blocks: title plus normalized price.
type Key struct {
	Title string
	Price string
}

// Candidate is one aggregator product eligible for block formation.
// Position preserves aggregator insertion order, the tie-break for
// equal prices.
type Candidate struct {
	Title        string
	Price        decimal.Decimal
	Source       string
	Link         string
	ProductLink  string
	ImmersiveURL string
	Position     int
}

// Key returns the product key of the candidate.
func (c Candidate) Key() Key {
	return Key{Title: c.Title, Price: c.Price.StringFixed(2)}
}

// Block is a maximal contiguous run of price-sorted candidates whose
// prices all fit within [price[start], price[start]*(1+eps)].
type Block struct {
	Start   int
	Members []Candidate
}

// MinPrice returns the block's anchor price.
func (b Block) MinPrice() decimal.Decimal {
	return b.Members[0].Price
}

// SortCandidates orders the pool ascending by price; candidates tied on
// price keep aggregator insertion order.
func SortCandidates(pool []Candidate) []Candidate {
	sorted := make([]Candidate, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Price.Equal(sorted[j].Price) {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	return sorted
}

// FormBlocks computes, for every starting index of the sorted pool, the
// maximal block within variation eps. Failed candidates stay in
// formation; they are discounted through Potential instead, so a block
// whose members were burned ranks down rather than reshaping.
func FormBlocks(sorted []Candidate, eps float64) []Block {
	factor := decimal.NewFromFloat(1 + eps)
	blocks := make([]Block, 0, len(sorted))
	for i := range sorted {
		limit := sorted[i].Price.Mul(factor)
		j := i
		for j+1 < len(sorted) && sorted[j+1].Price.LessThanOrEqual(limit) {
			j++
		}
		blocks = append(blocks, Block{Start: i, Members: sorted[i : j+1]})
	}
	return blocks
}

// RankBlocks orders blocks by (more members, cheaper anchor).
func RankBlocks(blocks []Block) []Block {
	ranked := make([]Block, len(blocks))
	copy(ranked, blocks)
	sort.SliceStable(ranked, func(i, j int) bool {
		if len(ranked[i].Members) != len(ranked[j].Members) {
			return len(ranked[i].Members) > len(ranked[j].Members)
		}
		return ranked[i].MinPrice().LessThan(ranked[j].MinPrice())
	})
	return ranked
}

// Potential counts how many sources the block could still yield:
// members already validated plus members not yet tried.
func Potential(b Block, validated, failed map[Key]bool) int {
	n := 0
	for _, m := range b.Members {
		k := m.Key()
		if validated[k] || !failed[k] {
			n++
		}
	}
	return n
}

// ValidatedIn counts block members whose keys are validated.
func ValidatedIn(b Block, validated map[Key]bool) int {
	n := 0
	for _, m := range b.Members {
		if validated[m.Key()] {
			n++
		}
	}
	return n
}

// containsAll reports whether every key of set is a member of b.
func containsAll(b Block, set map[Key]bool) bool {
	members := make(map[Key]bool, len(b.Members))
	for _, m := range b.Members {
		members[m.Key()] = true
	}
	for k := range set {
		if !members[k] {
			return false
		}
	}
	return true
}
