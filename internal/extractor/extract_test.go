package extractor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/domain"
)

func extract(t *testing.T, page string) (decimal.Decimal, domain.ExtractionMethod) {
	t.Helper()
	p, m, ok := ExtractPrice(page)
	require.True(t, ok, "no price extracted")
	return p, m
}

func TestExtractJSONLDWinsOverLaterMethods(t *testing.T) {
	page := `<html><head>
		<script type="application/ld+json">
		{"@type":"Product","name":"Notebook","offers":{"@type":"Offer","price":"3599.90","priceCurrency":"BRL"}}
		</script>
		<meta property="og:price:amount" content="3700.00">
		</head><body><span class="price">R$ 3.800,00</span></body></html>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodJSONLD, m)
	assert.True(t, p.Equal(decimal.RequireFromString("3599.90")), p.String())
}

func TestExtractJSONLDGraphNesting(t *testing.T) {
	page := `<script type="application/ld+json">
		{"@graph":[{"@type":"WebPage"},{"@type":"Product","offers":[{"lowPrice":1299.5,"highPrice":1400}]}]}
		</script>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodJSONLD, m)
	assert.True(t, p.Equal(decimal.RequireFromString("1299.5")), p.String())
}

func TestExtractMetaTag(t *testing.T) {
	page := `<html><head><meta property="product:price:amount" content="249.99"></head>
		<body>sem marcação estruturada</body></html>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodMeta, m)
	assert.True(t, p.Equal(decimal.RequireFromString("249.99")), p.String())
}

func TestExtractDOMSelector(t *testing.T) {
	page := `<html><body>
		<div class="product-info">
			<span class="product-price">R$ 1.234,56</span>
		</div></body></html>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodDOM, m)
	assert.True(t, p.Equal(decimal.RequireFromString("1234.56")), p.String())
}

func TestExtractItempropElement(t *testing.T) {
	page := `<div><span itemprop="price">R$ 89,90</span></div>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodDOM, m)
	assert.True(t, p.Equal(decimal.RequireFromString("89.90")), p.String())
}

func TestExtractRegexFallback(t *testing.T) {
	page := `<html><body><p>Por apenas R$ 2.499,00 em até 10x!</p></body></html>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodRegex, m)
	assert.True(t, p.Equal(decimal.RequireFromString("2499")), p.String())
}

func TestExtractSanityBoundsSkipToNextMethod(t *testing.T) {
	// JSON-LD price of one centavo and a 12-million meta price are both
	// insane; the DOM selector supplies the real value.
	page := `<html><head>
		<script type="application/ld+json">{"@type":"Product","offers":{"price":"0.01"}}</script>
		<meta property="og:price:amount" content="12000000">
		</head><body><span class="price">R$ 450,00</span></body></html>`

	p, m := extract(t, page)
	assert.Equal(t, domain.MethodDOM, m)
	assert.True(t, p.Equal(decimal.RequireFromString("450")), p.String())
}

func TestExtractNothing(t *testing.T) {
	_, _, ok := ExtractPrice(`<html><body><p>página sem preço algum</p></body></html>`)
	assert.False(t, ok)
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Notebook Dell | Loja",
		PageTitle(`<html><head><title> Notebook Dell | Loja </title></head></html>`))
	assert.Empty(t, PageTitle(`<html><body>x</body></html>`))
}
