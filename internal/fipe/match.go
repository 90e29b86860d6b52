// Package fipe resolves vehicles against the public FIPE price table:
// similarity lookup in the local price bank, hierarchical API
// resolution with fuzzy brand/model matching, evidence screenshot of
// the public site, and an UPSERT back into the bank.
package fipe

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Matching thresholds.
const (
	brandSimilarityMin = 0.6
	modelSimilarityMin = 0.5
)

// Common shorthand the analysis emits for Brazilian brands.
var brandAliases = map[string]string{
	"vw":       "volkswagen",
	"gm":       "chevrolet",
	"mb":       "mercedes-benz",
	"mercedes": "mercedes-benz",
	"chevy":    "chevrolet",
	"land":     "land rover",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases and strips diacritics so "Citroën" and
// "citroen" compare equal.
func normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// expandAlias rewrites known shorthand to the table's brand naming.
func expandAlias(brand string) string {
	b := normalize(brand)
	if full, ok := brandAliases[b]; ok {
		return full
	}
	return b
}

// similarity is a normalized Levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	dist := levenshtein(a, b)
	max := la
	if lb > max {
		max = lb
	}
	return 1 - float64(dist)/float64(max)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// matchBrand picks the best table brand for the analysis terms: exact
// normalized hit first, then containment, then similarity above the
// brand threshold.
func matchBrand(terms []string, brands []Item) (Item, bool) {
	var best Item
	bestScore := 0.0
	for _, term := range terms {
		want := expandAlias(term)
		if want == "" {
			continue
		}
		for _, b := range brands {
			have := normalize(b.Label)
			switch {
			case have == want:
				return b, true
			case strings.Contains(have, want) || strings.Contains(want, have):
				if 0.95 > bestScore {
					best, bestScore = b, 0.95
				}
			default:
				if s := similarity(want, have); s > bestScore {
					best, bestScore = b, s
				}
			}
		}
	}
	return best, bestScore >= brandSimilarityMin
}

// matchModel scores table models against the query: an exact hit of
// every query word wins outright; otherwise the highest fraction of
// query words present in the model name; similarity is the last
// resort. More words present always beats higher raw similarity.
func matchModel(query string, models []Item) (Item, bool) {
	words := strings.Fields(normalize(query))
	type score struct {
		wordsHit int
		sim      float64
	}
	var best Item
	bestScore := score{}
	found := false
	for _, m := range models {
		have := normalize(m.Label)
		hit := 0
		for _, w := range words {
			if len(w) >= 2 && strings.Contains(have, w) {
				hit++
			}
		}
		if len(words) > 0 && hit == len(words) {
			return m, true
		}
		sim := similarity(query, have)
		if hit == 0 && sim < modelSimilarityMin {
			continue
		}
		s := score{wordsHit: hit, sim: sim}
		if !found || s.wordsHit > bestScore.wordsHit ||
			(s.wordsHit == bestScore.wordsHit && s.sim > bestScore.sim) {
			best, bestScore, found = m, s, true
		}
	}
	return best, found
}

// matchYear selects the year option whose code carries the wanted year
// digits and whose label's fuel text agrees with the analysis fuel, if
// one was given. Fuel strings come from the table itself, never from a
// pre-computed code.
func matchYear(year int, fuel string, years []Item) (Item, bool) {
	wantYear := strconv.Itoa(year)
	wantFuel := normalize(fuel)
	var yearOnly Item
	foundYearOnly := false
	for _, y := range years {
		label := normalize(y.Label)
		if !strings.Contains(label, wantYear) && !strings.HasPrefix(normalize(y.Value), wantYear+"-") {
			continue
		}
		if wantFuel != "" && strings.Contains(label, wantFuel) {
			return y, true
		}
		if !foundYearOnly {
			yearOnly, foundYearOnly = y, true
		}
	}
	return yearOnly, foundYearOnly
}
