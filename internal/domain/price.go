package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBRL parses a Brazilian-formatted price text ("R$ 1.234,56").
// Dots are thousands separators and the comma is the decimal mark.
// Texts without a comma are read as plain decimals. Returns false for
// anything that does not yield a positive value.
func ParseBRL(text string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "r$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.ContainsRune(s, ',') {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	// Keep only the leading numeric run.
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	s = s[:end]
	if s == "" || s == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
