package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/licitaware/cotador/internal/blocksearch"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/extractor"
	"github.com/licitaware/cotador/internal/ledger"
	"github.com/licitaware/cotador/internal/persistence"
	"github.com/licitaware/cotador/internal/urlx"
)

// priceMismatchTolerance is the relative window between the extracted
// page price and the aggregator price of the same candidate.
var priceMismatchTolerance = decimal.NewFromFloat(0.05)

// probeRun is the per-request probing state shared by every candidate
// the block driver tries.
type probeRun struct {
	c     *Coordinator
	q     *domain.QuoteRequest
	cfgv  *domain.ProjectConfigVersion
	rules *urlx.Rules

	total     int
	validated int
	failed    int
	shots     int

	urlsSeen   map[string]bool
	urlByKey   map[blocksearch.Key]string
	priceByKey map[blocksearch.Key]decimal.Decimal
	prior      map[string]decimal.Decimal // URL -> persisted price from an interrupted run
	calls      []ledger.APICall
}

func newProbeRun(c *Coordinator, q *domain.QuoteRequest, cfgv *domain.ProjectConfigVersion, rules *urlx.Rules, total int, prior []domain.QuoteSource) *probeRun {
	pr := &probeRun{
		c:          c,
		q:          q,
		cfgv:       cfgv,
		rules:      rules,
		total:      total,
		urlsSeen:   make(map[string]bool),
		urlByKey:   make(map[blocksearch.Key]string),
		priceByKey: make(map[blocksearch.Key]decimal.Decimal),
		prior:      make(map[string]decimal.Decimal, len(prior)),
	}
	for _, s := range prior {
		pr.prior[s.URL] = s.Price
	}
	return pr
}

// evaluate runs the full validation pipeline on one candidate: resolve
// the concrete store offer, apply the domain policy, fetch the page
// with its screenshot and confirm the price. A false return rejects the
// candidate with an audited reason; only infrastructure errors abort.
func (pr *probeRun) evaluate(ctx context.Context, cand blocksearch.Candidate) (bool, error) {
	pr.c.metrics.Probed()

	store, calls, err := pr.c.searcher.ResolveStore(ctx, cand, pr.rules)
	pr.calls = append(pr.calls, toLedgerCalls(calls)...)
	if err != nil {
		return pr.reject(ctx, cand, cand.Link, "", domain.RejectOther,
			"resolução da loja falhou: "+err.Error())
	}
	if store == nil {
		return pr.reject(ctx, cand, cand.Link, "", domain.RejectNoStoreLink,
			"nenhum link direto de loja disponível")
	}

	// A row persisted by an interrupted run already passed the whole
	// pipeline: reuse it instead of re-fetching or re-inserting.
	if price, ok := pr.prior[store.URL]; ok {
		delete(pr.prior, store.URL)
		pr.urlsSeen[store.URL] = true
		k := cand.Key()
		pr.urlByKey[k] = store.URL
		pr.priceByKey[k] = price
		pr.validated++
		pr.c.log.Debug().
			Str("request_id", pr.q.ID.String()).
			Str("url", store.URL).
			Msg("candidate already validated by a previous run, reusing")
		return true, nil
	}

	storeDomain, err := urlx.Domain(store.URL)
	if err != nil {
		return pr.reject(ctx, cand, store.URL, "", domain.RejectNoStoreLink,
			"URL da loja ilegível: "+err.Error())
	}
	if pr.rules.IsBlockedDomain(storeDomain) {
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectBlockedDomain,
			"domínio bloqueado: "+storeDomain)
	}
	if !urlx.IsBrazilian(storeDomain) && !pr.rules.IsWhitelisted(storeDomain) {
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectForeignDomain,
			"domínio estrangeiro fora da lista de fabricantes: "+storeDomain)
	}
	if urlx.IsListing(store.URL) {
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectListingURL,
			"URL aponta para listagem, não para produto")
	}
	if pr.urlsSeen[store.URL] {
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectDuplicateURL,
			"URL já utilizada por outra fonte desta cotação")
	}

	page, err := pr.c.fetcher.Fetch(ctx, store.URL)
	if err != nil {
		// Transient: the URL stays free for a later candidate.
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectScreenshotError,
			"captura da página falhou: "+err.Error())
	}
	shotID, err := pr.saveScreenshot(ctx, page.Screenshot)
	if err != nil {
		return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectScreenshotError,
			"gravação da evidência falhou: "+err.Error())
	}
	// Extraction succeeded: every outcome from here is deterministic
	// for this URL, so it is committed against reuse.
	pr.urlsSeen[store.URL] = true

	price := cand.Price
	method := domain.MethodGoogleShopping
	if pr.cfgv.PriceMismatchCheck {
		extracted, m, ok := extractor.ExtractPrice(page.HTML)
		if !ok {
			return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectInvalidPrice,
				"nenhum preço legível na página")
		}
		diff := extracted.Sub(cand.Price).Abs().Div(cand.Price)
		if diff.GreaterThan(priceMismatchTolerance) {
			return pr.reject(ctx, cand, store.URL, storeDomain, domain.RejectPriceMismatch,
				fmt.Sprintf("preço da página %s diverge do anunciado %s",
					extracted.StringFixed(2), cand.Price.StringFixed(2)))
		}
		price, method = extracted, m
	}

	title := extractor.PageTitle(page.HTML)
	if title == "" {
		title = cand.Title
	}
	src := &domain.QuoteSource{
		ID:             uuid.New(),
		QuoteRequestID: pr.q.ID,
		URL:            store.URL,
		Domain:         storeDomain,
		PageTitle:      title,
		Price:          price,
		Currency:       "BRL",
		Method:         method,
		ScreenshotID:   shotID,
		CapturedAt:     nowUTC(),
		IsAccepted:     true,
	}
	if err := pr.c.repo.Sources.Insert(ctx, src); err != nil {
		if !errors.Is(err, persistence.ErrDuplicateSource) {
			return false, err
		}
		pr.c.log.Debug().Str("url", store.URL).Msg("source row already persisted, reusing")
	}

	k := cand.Key()
	pr.urlByKey[k] = store.URL
	pr.priceByKey[k] = price
	pr.validated++
	pr.c.log.Debug().
		Str("request_id", pr.q.ID.String()).
		Str("url", store.URL).
		Str("method", string(method)).
		Str("price", price.StringFixed(2)).
		Msg("candidate validated")
	return true, nil
}

// saveScreenshot stores the evidence blob and its File row.
func (pr *probeRun) saveScreenshot(ctx context.Context, png []byte) (*uuid.UUID, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("captura vazia")
	}
	name := fmt.Sprintf("screenshot_%s_%d", pr.q.ID, pr.shots)
	pr.shots++
	f, err := pr.c.blobs.Put(domain.FileScreenshot, name, "image/png", "png", png)
	if err != nil {
		return nil, err
	}
	if err := pr.c.repo.Files.Insert(ctx, f); err != nil {
		return nil, err
	}
	return &f.ID, nil
}

// reject audits the discarded candidate and counts it. Audit-write
// failures are logged, never fatal.
func (pr *probeRun) reject(ctx context.Context, cand blocksearch.Candidate, url, storeDomain string, reason domain.RejectionReason, msg string) (bool, error) {
	pr.failed++
	pr.c.metrics.Rejected(string(reason))
	pr.c.log.Debug().
		Str("request_id", pr.q.ID.String()).
		Str("title", cand.Title).
		Str("reason", string(reason)).
		Msg(msg)
	if err := pr.c.repo.Sources.InsertFailure(ctx, &domain.QuoteSourceFailure{
		ID:             uuid.New(),
		QuoteRequestID: pr.q.ID,
		URL:            url,
		Domain:         storeDomain,
		ProductTitle:   cand.Title,
		GooglePrice:    cand.Price,
		Reason:         reason,
		Message:        msg,
		CreatedAt:      nowUTC(),
	}); err != nil {
		pr.c.log.Warn().Err(err).Msg("failure audit row not written")
	}
	return false, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
