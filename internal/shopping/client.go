// Package shopping is the aggregator-backed product search: one search
// call per query producing a filtered, price-sorted candidate pool, and
// a lazy per-candidate store resolver over the aggregator's per-product
// endpoint.
package shopping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/licitaware/cotador/internal/blocksearch"
	"github.com/licitaware/cotador/internal/cache"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/urlx"
)

// maxCandidates caps the pool after ascending price sort.
const maxCandidates = 150

// sellerPriceTolerance is the relative sanity window between a seller
// price and the aggregator price of the same candidate.
const sellerPriceTolerance = 0.05

// APICall is one audited HTTP call, URL already sanitized.
type APICall struct {
	URL          string
	ProductTitle string
	StoreLink    string
	Activity     string
}

// SearchLog is the structured account of one search call's filtering.
type SearchLog struct {
	RawPrimary    int `json:"raw_primary"`
	RawInline     int `json:"raw_inline"`
	BlockedSource int `json:"dropped_blocked_source"`
	InvalidPrice  int `json:"dropped_invalid_price"`
	OverCap       int `json:"dropped_over_cap"`
	Kept          int `json:"kept"`
}

// SearchResult is the search call output: the pool, the raw aggregator
// response for the durable checkpoint, the filter log and the audit
// list.
type SearchResult struct {
	Candidates []blocksearch.Candidate
	RawJSON    json.RawMessage
	Log        SearchLog
	Calls      []APICall
}

// Store is a resolved seller offer.
type Store struct {
	Name  string
	URL   string
	Price decimal.Decimal
}

// Client calls the aggregator. One instance is shared by all workers;
// the limiter and breaker protect the single upstream quota.
type Client struct {
	baseURL  string
	apiKey   string
	location string
	language string
	country  string

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *cache.Cache
	log     zerolog.Logger
}

// NewClient wires the aggregator client from configuration.
func NewClient(cfg config.ShoppingConfig, c *cache.Cache, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		location: cfg.Location,
		language: cfg.Language,
		country:  cfg.Country,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "shopping",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		cache: c,
		log:   log.With().Str("component", "shopping").Logger(),
	}
}

type rawItem struct {
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Source         string  `json:"source"`
	ImmersiveURL   string  `json:"serpapi_product_api_immersive"`
	ProductLink    string  `json:"product_link"`
	Link           string  `json:"link"`
}

type searchResponse struct {
	ShoppingResults       []rawItem `json:"shopping_results"`
	InlineShoppingResults []rawItem `json:"inline_shopping_results"`
}

// Search runs one aggregator search and filters the union of its result
// arrays: blocked sources out, non-positive prices out, at most 150
// kept after ascending sort.
func (c *Client) Search(ctx context.Context, query string, rules *urlx.Rules) (*SearchResult, error) {
	q := url.Values{}
	q.Set("engine", "google_shopping")
	q.Set("q", query)
	q.Set("api_key", c.apiKey)
	q.Set("gl", c.country)
	q.Set("hl", c.language)
	q.Set("location", c.location)
	q.Set("num", "100")
	endpoint := c.baseURL + "/search?" + q.Encode()

	res := &SearchResult{}

	var raw json.RawMessage
	cacheKey := "shopping:search:" + hashQuery(query)
	if !c.cache.Get(ctx, cacheKey, &raw) {
		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("busca no agregador: %w", err)
		}
		raw = body
		c.cache.Set(ctx, cacheKey, "shopping", raw, 10*time.Minute)
		res.Calls = append(res.Calls, APICall{
			URL:      urlx.RedactKey(endpoint),
			Activity: "shopping_search",
		})
	}
	res.RawJSON = raw

	pool, flog, err := FilterResponse(raw, rules)
	if err != nil {
		return nil, err
	}
	res.Candidates = pool
	res.Log = flog

	c.log.Info().
		Str("query", query).
		Int("raw", res.Log.RawPrimary+res.Log.RawInline).
		Int("kept", res.Log.Kept).
		Int("blocked_source", res.Log.BlockedSource).
		Int("invalid_price", res.Log.InvalidPrice).
		Msg("aggregator search filtered")
	return res, nil
}

// FilterResponse parses a raw aggregator payload and applies the
// candidate filters. It is also the resume path: a request holding a
// stored google_shopping_response_json rebuilds its pool from here
// without a new aggregator call.
func FilterResponse(raw json.RawMessage, rules *urlx.Rules) ([]blocksearch.Candidate, SearchLog, error) {
	var flog SearchLog
	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, flog, fmt.Errorf("decodificando resposta do agregador: %w", err)
	}
	flog.RawPrimary = len(parsed.ShoppingResults)
	flog.RawInline = len(parsed.InlineShoppingResults)

	union := make([]rawItem, 0, len(parsed.ShoppingResults)+len(parsed.InlineShoppingResults))
	union = append(union, parsed.ShoppingResults...)
	union = append(union, parsed.InlineShoppingResults...)

	pool := make([]blocksearch.Candidate, 0, len(union))
	for i, item := range union {
		if rules.IsBlockedSource(item.Source) {
			flog.BlockedSource++
			continue
		}
		if item.ExtractedPrice <= 0 {
			flog.InvalidPrice++
			continue
		}
		pool = append(pool, blocksearch.Candidate{
			Title:        item.Title,
			Price:        decimal.NewFromFloat(item.ExtractedPrice),
			Source:       item.Source,
			Link:         item.Link,
			ProductLink:  item.ProductLink,
			ImmersiveURL: item.ImmersiveURL,
			Position:     i,
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if !pool[i].Price.Equal(pool[j].Price) {
			return pool[i].Price.LessThan(pool[j].Price)
		}
		return pool[i].Position < pool[j].Position
	})
	if len(pool) > maxCandidates {
		flog.OverCap = len(pool) - maxCandidates
		pool = pool[:maxCandidates]
	}
	flog.Kept = len(pool)
	return pool, flog, nil
}

type sellerOffer struct {
	Name           string  `json:"name"`
	Link           string  `json:"link"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	BasePrice      string  `json:"base_price"`
}

type immersiveResponse struct {
	ProductResults struct {
		Stores []sellerOffer `json:"stores"`
	} `json:"product_results"`
	SellersResults struct {
		OnlineSellers []sellerOffer `json:"online_sellers"`
	} `json:"sellers_results"`
}

// ResolveStore turns one candidate into a concrete seller offer. The
// immersive endpoint is preferred; its sellers pass the same domain
// policy as the probe plus a price sanity window. With no usable
// seller, the candidate's direct link serves as fallback when it is not
// a redirect page.
func (c *Client) ResolveStore(ctx context.Context, cand blocksearch.Candidate, rules *urlx.Rules) (*Store, []APICall, error) {
	var calls []APICall

	if cand.ImmersiveURL != "" {
		endpoint := cand.ImmersiveURL
		if u, err := url.Parse(endpoint); err == nil {
			qs := u.Query()
			qs.Set("api_key", c.apiKey)
			u.RawQuery = qs.Encode()
			endpoint = u.String()
		}
		body, err := c.get(ctx, endpoint)
		call := APICall{
			URL:          urlx.RedactKey(endpoint),
			ProductTitle: cand.Title,
			Activity:     "shopping_immersive",
		}
		if err != nil {
			calls = append(calls, call)
			c.log.Warn().Err(err).Str("title", cand.Title).Msg("immersive call failed")
		} else {
			var parsed immersiveResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				calls = append(calls, call)
			} else {
				sellers := append(parsed.ProductResults.Stores, parsed.SellersResults.OnlineSellers...)
				if s := c.pickSeller(sellers, cand, rules); s != nil {
					call.StoreLink = s.URL
					calls = append(calls, call)
					return s, calls, nil
				}
				calls = append(calls, call)
			}
		}
	}

	if cand.Link != "" && !urlx.IsRedirect(cand.Link) {
		clean, err := urlx.Clean(cand.Link)
		if err == nil {
			return &Store{Name: cand.Source, URL: clean, Price: cand.Price}, calls, nil
		}
	}
	return nil, calls, nil
}

// pickSeller returns the first seller passing the domain policy and the
// price sanity window against the aggregator price.
func (c *Client) pickSeller(sellers []sellerOffer, cand blocksearch.Candidate, rules *urlx.Rules) *Store {
	for _, s := range sellers {
		if s.Link == "" {
			continue
		}
		clean, err := urlx.Clean(s.Link)
		if err != nil {
			continue
		}
		domain, err := urlx.Domain(clean)
		if err != nil || !rules.AllowedDomain(domain) {
			continue
		}
		if urlx.IsListing(clean) {
			continue
		}
		price := sellerPrice(s)
		if price.IsZero() {
			continue
		}
		diff := price.Sub(cand.Price).Abs().Div(cand.Price)
		if diff.GreaterThan(decimal.NewFromFloat(sellerPriceTolerance)) {
			continue
		}
		return &Store{Name: s.Name, URL: clean, Price: price}
	}
	return nil
}

// sellerPrice prefers the numeric field and falls back to parsing the
// BRL text of price/base_price.
func sellerPrice(s sellerOffer) decimal.Decimal {
	if s.ExtractedPrice > 0 {
		return decimal.NewFromFloat(s.ExtractedPrice)
	}
	for _, text := range []string{s.BasePrice, s.Price} {
		if p, ok := domain.ParseBRL(text); ok {
			return p
		}
	}
	return decimal.Zero
}

// get performs one aggregator GET through the breaker, retrying 429
// with the 2s/4s/8s backoff ladder. Other non-2xx statuses fail.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	backoff := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := c.breaker.Execute(func() (any, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return nil, fmt.Errorf("agregador HTTP %d: %s", resp.StatusCode, b)
			}
			return io.ReadAll(resp.Body)
		})
		if err == nil {
			return out.([]byte), nil
		}
		if err != errRateLimited || attempt >= len(backoff) {
			return nil, err
		}
		c.log.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff[attempt]).
			Msg("aggregator rate limited, backing off")
		select {
		case <-time.After(backoff[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var errRateLimited = fmt.Errorf("agregador limitou a taxa de chamadas")

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:8])
}
