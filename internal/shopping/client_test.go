package shopping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/blocksearch"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/urlx"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.ShoppingConfig{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Location: "Brazil",
		Language: "pt-br",
		Country:  "br",
	}, nil, zerolog.Nop())
}

func testRules() *urlx.Rules {
	return urlx.NewRules(
		map[string]string{"Mercado Livre": "mercadolivre.com.br"},
		nil,
		[]string{"dell.com"},
	)
}

const searchBody = `{
	"shopping_results": [
		{"title": "Notebook A", "extracted_price": 3500.0, "source": "Loja A", "link": "https://lojaa.com.br/p/1"},
		{"title": "Notebook ML", "extracted_price": 3200.0, "source": "Mercado Livre", "link": "https://ml.com/p/2"},
		{"title": "Notebook sem preço", "source": "Loja B"},
		{"title": "Notebook C", "extracted_price": 3100.0, "source": "Loja C", "link": "https://lojac.com.br/p/3"}
	],
	"inline_shopping_results": [
		{"title": "Notebook D", "extracted_price": 3300.0, "source": "Loja D", "link": "https://lojad.com.br/p/4"}
	]
}`

func TestSearchFiltersAndSorts(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Search(context.Background(), "notebook dell", testRules())
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "google_shopping", q["engine"][0])
	assert.Equal(t, "br", q["gl"][0])
	assert.Equal(t, "pt-br", q["hl"][0])
	assert.Equal(t, "100", q["num"][0])

	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "Notebook C", res.Candidates[0].Title)
	assert.Equal(t, "Notebook D", res.Candidates[1].Title)
	assert.Equal(t, "Notebook A", res.Candidates[2].Title)

	assert.Equal(t, 4, res.Log.RawPrimary)
	assert.Equal(t, 1, res.Log.RawInline)
	assert.Equal(t, 1, res.Log.BlockedSource)
	assert.Equal(t, 1, res.Log.InvalidPrice)
	assert.Equal(t, 3, res.Log.Kept)

	require.Len(t, res.Calls, 1)
	assert.Contains(t, res.Calls[0].URL, "api_key=REDACTED")
	assert.NotContains(t, res.Calls[0].URL, "test-key")
	assert.JSONEq(t, searchBody, string(res.RawJSON))
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Search(context.Background(), "notebook", testRules())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Len(t, res.Candidates, 3)
}

func TestSearchServerErrorFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Search(context.Background(), "notebook", testRules())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

const immersiveBody = `{
	"sellers_results": {
		"online_sellers": [
			{"name": "Mercado Livre", "link": "https://produto.mercadolivre.com.br/x", "extracted_price": 3500.0},
			{"name": "Loja Gringa", "link": "https://shop.example.com/x", "extracted_price": 3500.0},
			{"name": "Busca BR", "link": "https://buscape.com.br/search?q=notebook", "extracted_price": 3500.0},
			{"name": "Loja Cara", "link": "https://lojacara.com.br/p/9", "extracted_price": 4100.0},
			{"name": "Loja Boa", "link": "https://lojaboa.com.br/p/7?srsltid=abc", "base_price": "R$ 3.450,00"}
		]
	}
}`

func TestResolveStorePicksFirstPassingSeller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(immersiveBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	cand := blocksearch.Candidate{
		Title:        "Notebook A",
		Price:        decimal.NewFromInt(3500),
		ImmersiveURL: srv.URL + "/search?engine=google_immersive_product",
	}
	store, calls, err := c.ResolveStore(context.Background(), cand, testRules())
	require.NoError(t, err)
	require.NotNil(t, store)

	// Blocked, foreign, listing and out-of-window sellers are all skipped.
	assert.Equal(t, "Loja Boa", store.Name)
	assert.Equal(t, "https://lojaboa.com.br/p/7", store.URL)
	assert.True(t, store.Price.Equal(decimal.NewFromInt(3450)), store.Price.String())

	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].URL, "api_key=REDACTED")
	assert.Equal(t, store.URL, calls[0].StoreLink)
}

func TestResolveStoreFallsBackToDirectLink(t *testing.T) {
	c := newTestClient("http://unused")
	cand := blocksearch.Candidate{
		Title:  "Notebook B",
		Price:  decimal.NewFromInt(2000),
		Source: "Loja B",
		Link:   "https://lojab.com.br/p/5?gclid=track",
	}
	store, calls, err := c.ResolveStore(context.Background(), cand, testRules())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Empty(t, calls)
	assert.Equal(t, "https://lojab.com.br/p/5", store.URL)
	assert.Equal(t, "Loja B", store.Name)
	assert.True(t, store.Price.Equal(cand.Price))
}

func TestResolveStoreRedirectLinkYieldsNothing(t *testing.T) {
	c := newTestClient("http://unused")
	cand := blocksearch.Candidate{
		Title: "Notebook C",
		Price: decimal.NewFromInt(1500),
		Link:  "https://www.google.com/url?q=https://loja.com.br/p/1",
	}
	store, _, err := c.ResolveStore(context.Background(), cand, testRules())
	require.NoError(t, err)
	assert.Nil(t, store)
}
