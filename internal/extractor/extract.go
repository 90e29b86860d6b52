// Package extractor turns a retailer product page into a price and a
// screenshot. Extraction is a fixed cascade over the page HTML:
// JSON-LD product markup, price meta tags, a curated list of DOM
// selectors, and last a Brazilian currency regex scan. The first method
// yielding a sane value wins and is recorded as the extraction method.
package extractor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/licitaware/cotador/internal/domain"
)

// Sanity bounds for any extracted price.
var (
	minSanePrice = decimal.NewFromInt(1)
	maxSanePrice = decimal.NewFromInt(10_000_000)
)

func sane(d decimal.Decimal) bool {
	return d.GreaterThan(minSanePrice) && d.LessThanOrEqual(maxSanePrice)
}

// ExtractPrice runs the cascade over the page HTML.
func ExtractPrice(page string) (decimal.Decimal, domain.ExtractionMethod, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err == nil {
		if p, ok := fromJSONLD(doc); ok {
			return p, domain.MethodJSONLD, true
		}
		if p, ok := fromMeta(doc); ok {
			return p, domain.MethodMeta, true
		}
		if p, ok := fromSelectors(doc); ok {
			return p, domain.MethodDOM, true
		}
	}
	if p, ok := fromRegex(page); ok {
		return p, domain.MethodRegex, true
	}
	return decimal.Zero, "", false
}

// PageTitle returns the <title> text, trimmed, or "".
func PageTitle(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	var title string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			title = strings.TrimSpace(textContent(n))
			return false
		}
		return true
	})
	return title
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// fromJSONLD scans application/ld+json blocks for Product/Offer price
// fields. Markup in the wild nests offers arbitrarily, so the search is
// a recursive walk for the first sane price-bearing key.
func fromJSONLD(doc *html.Node) (decimal.Decimal, bool) {
	var found decimal.Decimal
	ok := false
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "script" {
			return true
		}
		if !strings.EqualFold(attr(n, "type"), "application/ld+json") {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(textContent(n)), &v); err != nil {
			return true
		}
		if p, has := jsonLDPrice(v); has {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok
}

var jsonLDPriceKeys = []string{"price", "lowPrice", "highPrice"}

func jsonLDPrice(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case map[string]any:
		for _, key := range jsonLDPriceKeys {
			if raw, has := t[key]; has {
				if p, ok := anyPrice(raw); ok && sane(p) {
					return p, true
				}
			}
		}
		for _, child := range t {
			if p, ok := jsonLDPrice(child); ok {
				return p, true
			}
		}
	case []any:
		for _, child := range t {
			if p, ok := jsonLDPrice(child); ok {
				return p, true
			}
		}
	}
	return decimal.Zero, false
}

// anyPrice converts a JSON-LD price value: numbers are decimal point
// floats; strings may come in either locale.
func anyPrice(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), t > 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d, d.IsPositive()
		}
		return domain.ParseBRL(s)
	}
	return decimal.Zero, false
}

var priceMetaKeys = map[string]bool{
	"og:price:amount":      true,
	"product:price:amount": true,
}

// fromMeta reads OpenGraph and product price meta tags.
func fromMeta(doc *html.Node) (decimal.Decimal, bool) {
	var found decimal.Decimal
	ok := false
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return true
		}
		key := attr(n, "property")
		if key == "" {
			key = attr(n, "name")
		}
		if !priceMetaKeys[strings.ToLower(key)] && !strings.EqualFold(attr(n, "itemprop"), "price") {
			return true
		}
		if p, has := anyPrice(attr(n, "content")); has && sane(p) {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok
}

// Curated price selectors, tried in order.
var priceClasses = []string{"price", "product-price", "sales-price", "preco", "valor"}

// fromSelectors reads the text of elements matching the curated
// selector list: the price classes plus [itemprop=price].
func fromSelectors(doc *html.Node) (decimal.Decimal, bool) {
	var found decimal.Decimal
	ok := false
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if !matchesPriceSelector(n) {
			return true
		}
		if p, has := domain.ParseBRL(textContent(n)); has && sane(p) {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok
}

func matchesPriceSelector(n *html.Node) bool {
	if strings.EqualFold(attr(n, "itemprop"), "price") {
		return true
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		class = strings.ToLower(class)
		for _, want := range priceClasses {
			if class == want {
				return true
			}
		}
	}
	return false
}

// Brazilian currency pattern: R$ with dot thousands and comma cents.
var brlPattern = regexp.MustCompile(`R\$\s*\d{1,3}(?:\.\d{3})*,\d{2}`)

// fromRegex is the last resort: the first sane currency match anywhere
// in the raw HTML.
func fromRegex(page string) (decimal.Decimal, bool) {
	for _, m := range brlPattern.FindAllString(page, 10) {
		if p, ok := domain.ParseBRL(m); ok && sane(p) {
			return p, true
		}
	}
	return decimal.Zero, false
}
