package urlx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStripsTrackingParams(t *testing.T) {
	got, err := Clean("https://www.loja.com.br/produto?sku=9&utm_source=google&srsltid=AfmBOo&gclid=xyz#reviews")
	require.NoError(t, err)
	assert.Equal(t, "https://www.loja.com.br/produto?sku=9", got)
}

func TestCleanKeepsFunctionalParams(t *testing.T) {
	got, err := Clean("https://www.loja.com.br/p?id=123&cor=azul")
	require.NoError(t, err)
	assert.Contains(t, got, "id=123")
	assert.Contains(t, got, "cor=azul")
}

func TestCleanRejectsRelativeURL(t *testing.T) {
	_, err := Clean("/produto/123")
	require.Error(t, err)
}

func TestDomainExtractsETLDPlusOne(t *testing.T) {
	cases := map[string]string{
		"https://www.magazineluiza.com.br/p/123": "magazineluiza.com.br",
		"https://shop.dell.com/notebook":         "dell.com",
		"https://produto.sub.loja.com.br/x":      "loja.com.br",
	}
	for raw, want := range cases {
		got, err := Domain(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestIsListing(t *testing.T) {
	listings := []string{
		"https://www.loja.com.br/busca/cadeira",
		"https://www.loja.com.br/search?q=cadeira",
		"https://www.loja.com.br/categoria/moveis/",
		"https://www.loja.com.br/p?q=mesa",
	}
	for _, raw := range listings {
		assert.True(t, IsListing(raw), raw)
	}
	products := []string{
		"https://www.loja.com.br/produto/cadeira-giratoria-123",
		"https://www.loja.com.br/cadeira?sku=9",
	}
	for _, raw := range products {
		assert.False(t, IsListing(raw), raw)
	}
}

func TestIsRedirect(t *testing.T) {
	assert.True(t, IsRedirect("https://www.google.com/aclk?sa=1"))
	assert.False(t, IsRedirect("https://www.loja.com.br/p"))
}

func TestRedactKey(t *testing.T) {
	got := RedactKey("https://serpapi.com/search?engine=google_shopping&api_key=s3cret&q=mesa")
	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "api_key=REDACTED")

	assert.Equal(t, "https://serpapi.com/search",
		RedactKey("https://serpapi.com/search?api_key=s3cret\x7f%zz"))
}

func TestRulesBlockedSourceConsistentWithDomain(t *testing.T) {
	r := NewRules(
		map[string]string{"Mercado  Livre": "mercadolivre.com.br"},
		[]string{"OLX.com.br"},
		[]string{"dell.com"},
	)

	// Label matching is case and whitespace insensitive.
	assert.True(t, r.IsBlockedSource("mercado livre"))
	d, ok := r.SourceDomain("MERCADO LIVRE")
	require.True(t, ok)
	assert.True(t, r.IsBlockedDomain(d))

	assert.True(t, r.IsBlockedDomain("olx.com.br"))
	assert.False(t, r.IsBlockedSource("Loja do Fabricante"))
}

func TestRulesAllowedDomain(t *testing.T) {
	r := NewRules(map[string]string{"Mercado Livre": "mercadolivre.com.br"}, nil, []string{"dell.com"})

	assert.True(t, r.AllowedDomain("magazineluiza.com.br"))
	assert.True(t, r.AllowedDomain("dell.com"), "whitelisted manufacturer")
	assert.False(t, r.AllowedDomain("mercadolivre.com.br"), "blocked")
	assert.False(t, r.AllowedDomain("amazon.com"), "foreign, not whitelisted")
}
