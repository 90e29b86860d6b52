// Package coordinator drives one QuoteRequest from PROCESSING to a
// terminal state: claim, LLM analysis, routing, aggregator search,
// block-search probing, aggregation and finalization. A durable
// checkpoint follows every paid milestone so an interrupted run
// resumes without re-spending credits.
package coordinator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/licitaware/cotador/internal/analysis"
	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/blocksearch"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/extractor"
	"github.com/licitaware/cotador/internal/fipe"
	"github.com/licitaware/cotador/internal/ledger"
	"github.com/licitaware/cotador/internal/pdfsink"
	"github.com/licitaware/cotador/internal/persistence"
	"github.com/licitaware/cotador/internal/shopping"
	"github.com/licitaware/cotador/internal/telemetry"
	"github.com/licitaware/cotador/internal/urlx"
)

// errCancelled aborts the run when a user cancel is observed. The
// stored CANCELLED status is never overwritten.
var errCancelled = errors.New("processamento cancelado pelo usuário")

// fipeSiteURL is the public vehicle-table page recorded as the source
// URL of FIPE-priced quotations.
const fipeSiteURL = "https://veiculos.fipe.org.br"

// Analyzer produces the structured item analysis.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*domain.Analysis, error)
}

// Searcher is the aggregator surface the coordinator needs.
type Searcher interface {
	Search(ctx context.Context, query string, rules *urlx.Rules) (*shopping.SearchResult, error)
	ResolveStore(ctx context.Context, cand blocksearch.Candidate, rules *urlx.Rules) (*shopping.Store, []shopping.APICall, error)
}

// PageFetcher navigates one store page, returning HTML plus screenshot.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*extractor.Page, error)
}

// VehicleResolver prices one vehicle through the FIPE sub-pipeline.
type VehicleResolver interface {
	Resolve(ctx context.Context, params *domain.VehicleParams, requestID uuid.UUID) (*fipe.Result, error)
}

// Deps wires one coordinator.
type Deps struct {
	Repo      *persistence.Repository
	Analyzer  Analyzer
	Searcher  Searcher
	Fetcher   PageFetcher
	Vehicles  VehicleResolver
	Blobs     *blobstore.Store
	Recorder  *ledger.Recorder
	PDF       pdfsink.Generator
	Metrics   *telemetry.Metrics
	Whitelist []string
	WorkerID  string
	Liveness  time.Duration
	Logger    zerolog.Logger
}

// Coordinator executes quote requests. One instance is shared by all
// worker goroutines; per-request state lives on the stack.
type Coordinator struct {
	repo      *persistence.Repository
	analyzer  Analyzer
	searcher  Searcher
	fetcher   PageFetcher
	vehicles  VehicleResolver
	blobs     *blobstore.Store
	recorder  *ledger.Recorder
	pdf       pdfsink.Generator
	metrics   *telemetry.Metrics
	whitelist []string
	workerID  string
	liveness  time.Duration
	log       zerolog.Logger
}

// New builds the coordinator.
func New(d Deps) *Coordinator {
	return &Coordinator{
		repo:      d.Repo,
		analyzer:  d.Analyzer,
		searcher:  d.Searcher,
		fetcher:   d.Fetcher,
		vehicles:  d.Vehicles,
		blobs:     d.Blobs,
		recorder:  d.Recorder,
		pdf:       d.PDF,
		metrics:   d.Metrics,
		whitelist: d.Whitelist,
		workerID:  d.WorkerID,
		liveness:  d.Liveness,
		log:       d.Logger.With().Str("component", "coordinator").Logger(),
	}
}

// Process runs one request end to end. A lost claim race returns nil:
// another worker owns the request. Domain failures finalize the request
// as ERROR and return nil; only infrastructure errors propagate.
func (c *Coordinator) Process(ctx context.Context, id uuid.UUID) error {
	claimed, err := c.repo.Quotes.Claim(ctx, id, c.workerID, c.liveness)
	if err != nil {
		return err
	}
	if !claimed {
		c.log.Debug().Str("request_id", id.String()).Msg("claim lost, yielding")
		return nil
	}
	c.metrics.Claimed()
	start := time.Now()

	q, err := c.repo.Quotes.Get(ctx, id)
	if err != nil {
		return err
	}
	log := c.log.With().Str("request_id", id.String()).Logger()
	if q.Status.Terminal() {
		log.Warn().Str("status", string(q.Status)).Msg("claimed a terminal request, skipping")
		return nil
	}
	log.Info().
		Str("input_type", string(q.InputType)).
		Str("checkpoint", string(q.Checkpoint)).
		Int("attempt", q.AttemptNumber).
		Msg("processing quote request")

	cfgv, err := c.repo.Config.GetVersion(ctx, q.ConfigVersionID)
	if err != nil {
		return c.fail(ctx, q, start, "configuração da cotação indisponível", err)
	}
	rules, err := c.loadRules(ctx)
	if err != nil {
		return c.fail(ctx, q, start, "lista de domínios bloqueados indisponível", err)
	}

	c.progress(ctx, id, domain.StepClaim, "requisição reivindicada para processamento")
	c.checkpoint(ctx, q, domain.CheckpointInit, nil)

	a, err := c.runAnalysis(ctx, q)
	switch {
	case errors.Is(err, errCancelled):
		log.Info().Msg("cancel observed before analysis, exiting")
		return nil
	case err != nil:
		return c.fail(ctx, q, start, "análise do item falhou: "+err.Error(), err)
	}

	var query string
	if a.ProcessingType == domain.ProcessingFipe {
		finished, fallback, err := c.runFipe(ctx, q, a, start)
		switch {
		case errors.Is(err, errCancelled):
			log.Info().Msg("cancel observed before FIPE resolution, exiting")
			return nil
		case err != nil:
			return c.fail(ctx, q, start, "consulta FIPE falhou sem alternativa de busca", err)
		case finished:
			return nil
		}
		query = fallback
		log.Info().Str("query", query).Msg("FIPE failed, falling back to market search")
	} else {
		query, err = a.ShoppingQuery()
		if err != nil {
			return c.fail(ctx, q, start, err.Error(), err)
		}
	}

	pool, flog, err := c.runSearch(ctx, q, query, rules)
	switch {
	case errors.Is(err, errCancelled):
		log.Info().Msg("cancel observed before search, exiting")
		return nil
	case err != nil:
		return c.fail(ctx, q, start, "busca de candidatos falhou: "+err.Error(), err)
	}

	if len(pool) == 0 {
		if flog.RawPrimary+flog.RawInline == 0 {
			return c.fail(ctx, q, start, "agregador não retornou nenhum candidato", nil)
		}
		// The aggregator answered, but every result was filtered out;
		// a human decides what to do with the query.
		return c.finish(ctx, q, start, domain.StatusAwaitingReview,
			strptr("todos os candidatos retornados foram filtrados"))
	}

	res, pr, err := c.runBlockSearch(ctx, q, cfgv, pool, rules)
	switch {
	case errors.Is(err, errCancelled):
		log.Info().Msg("cancel observed mid-extraction, exiting")
		return nil
	case err != nil:
		return c.fail(ctx, q, start, "extração de preços abortada: "+err.Error(), err)
	}

	return c.finalize(ctx, q, cfgv, res, pr, start)
}

// runAnalysis returns the parsed analysis, skipping the LLM entirely
// when a durable payload is already stored.
func (c *Coordinator) runAnalysis(ctx context.Context, q *domain.QuoteRequest) (*domain.Analysis, error) {
	if len(q.AnalysisJSON) > 0 {
		c.log.Debug().Str("request_id", q.ID.String()).Msg("resuming with stored analysis payload")
		return domain.ParseAnalysis(q.AnalysisJSON)
	}
	if err := c.ensureNotCancelled(ctx, q.ID); err != nil {
		return nil, err
	}

	c.progress(ctx, q.ID, domain.StepAnalysisStart, "analisando o item com o modelo")
	c.checkpoint(ctx, q, domain.CheckpointAnalysisStart, nil)
	c.beat(ctx, q.ID)

	a, err := c.analyzer.Analyze(ctx, analysis.Input{
		Description: q.InputText,
		Images:      c.loadImages(q),
	})
	if err != nil {
		return nil, err
	}

	if err := c.repo.Quotes.SaveAnalysis(ctx, q.ID, a.Raw); err != nil {
		return nil, err
	}
	q.AnalysisJSON = a.Raw
	c.checkpoint(ctx, q, domain.CheckpointAnalysisDone, nil)
	if err := c.recorder.RecordLLM(ctx, q, "analise_item", a.Ledger); err != nil {
		c.log.Warn().Err(err).Msg("LLM cost booking failed")
	}
	c.metrics.ExternalCalls(string(domain.IntegrationLLM), a.Ledger.Calls)
	c.progress(ctx, q.ID, domain.StepAnalysisDone, "análise concluída: "+a.CanonicalName)
	return a, nil
}

// loadImages reads the request's input images from the blob store into
// the base64 form the provider expects. Unreadable images are skipped.
func (c *Coordinator) loadImages(q *domain.QuoteRequest) []analysis.Image {
	var images []analysis.Image
	for _, path := range q.InputImages {
		content, err := c.blobs.Get(path)
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("input image unreadable, skipping")
			continue
		}
		images = append(images, analysis.Image{
			MediaType: imageMime(path),
			Base64:    base64.StdEncoding.EncodeToString(content),
		})
	}
	return images
}

func imageMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// runFipe prices a vehicle through the table. On success the request is
// finalized as DONE with a single API_FIPE source; the terminal-status
// rule does not apply to the vehicle path. On failure a market fallback
// query is derived when possible.
func (c *Coordinator) runFipe(ctx context.Context, q *domain.QuoteRequest, a *domain.Analysis, start time.Time) (finished bool, fallback string, err error) {
	if err := c.ensureNotCancelled(ctx, q.ID); err != nil {
		return false, "", err
	}
	c.progress(ctx, q.ID, domain.StepSearchStart, "consultando a tabela FIPE")

	res, err := c.vehicles.Resolve(ctx, a.Vehicle, q.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("request_id", q.ID.String()).Msg("FIPE resolution failed")
		// The failed attempt still leaves an audit trail.
		if logErr := c.repo.Ledger.InsertLog(ctx, &domain.IntegrationLog{
			QuoteRequestID: ledger.UUIDPtr(q.ID),
			Kind:           domain.IntegrationFipe,
			Activity:       "fipe_tentativa_falhou",
			URL:            fipeSiteURL,
		}); logErr != nil {
			c.log.Warn().Err(logErr).Msg("FIPE failure audit row not written")
		}
		if query, ok := a.FallbackQuery(); ok {
			return false, query, nil
		}
		return false, "", err
	}

	// A bank hit spends no API call, so nothing is booked.
	if len(res.Calls) > 0 {
		if err := c.recorder.RecordCalls(ctx, q, domain.IntegrationFipe, fipeCalls(res)); err != nil {
			c.log.Warn().Err(err).Msg("FIPE cost booking failed")
		}
		c.metrics.ExternalCalls(string(domain.IntegrationFipe), len(res.Calls))
	}

	v := res.Vehicle
	src := &domain.QuoteSource{
		ID:             uuid.New(),
		QuoteRequestID: q.ID,
		URL:            fipeSiteURL,
		Domain:         "fipe.org.br",
		PageTitle:      fmt.Sprintf("%s %s %d %s (%s)", v.Brand, v.Model, v.Year, v.Fuel, v.CodigoFipe),
		Price:          v.Price,
		Currency:       "BRL",
		Method:         domain.MethodAPIFipe,
		ScreenshotID:   v.ScreenshotID,
		CapturedAt:     time.Now().UTC(),
		IsAccepted:     true,
	}
	// An interrupted run may already have persisted the FIPE source;
	// the fixed site URL makes the re-insert collide.
	if err := c.repo.Sources.Insert(ctx, src); err != nil && !errors.Is(err, persistence.ErrDuplicateSource) {
		return false, "", err
	}

	c.progress(ctx, q.ID, domain.StepStats, "preço FIPE obtido, consolidando")
	agg, ok := domain.ComputeAggregates([]decimal.Decimal{v.Price})
	if ok {
		if err := c.repo.Quotes.SetAggregates(ctx, q.ID, agg); err != nil {
			return false, "", err
		}
		q.MeanPrice, q.MinPrice, q.MaxPrice, q.SpreadPercent = &agg.Mean, &agg.Min, &agg.Max, &agg.SpreadPercent
	}
	c.checkpoint(ctx, q, domain.CheckpointFinalization, mustJSON(map[string]any{
		"codigo_fipe":     v.CodigoFipe,
		"reference_month": v.ReferenceMonth,
		"from_cache":      res.FromCache,
	}))

	c.emitDocument(ctx, q, []domain.QuoteSource{*src}, v)
	return true, "", c.finish(ctx, q, start, domain.StatusDone, nil)
}

// runSearch returns the filtered candidate pool, reusing the stored
// aggregator payload when one exists.
func (c *Coordinator) runSearch(ctx context.Context, q *domain.QuoteRequest, query string, rules *urlx.Rules) ([]blocksearch.Candidate, shopping.SearchLog, error) {
	if len(q.ShoppingJSON) > 0 {
		c.log.Debug().Str("request_id", q.ID.String()).Msg("resuming with stored aggregator payload")
		return shopping.FilterResponse(q.ShoppingJSON, rules)
	}
	if err := c.ensureNotCancelled(ctx, q.ID); err != nil {
		return nil, shopping.SearchLog{}, err
	}

	c.progress(ctx, q.ID, domain.StepSearchStart, "buscando candidatos no mercado: "+query)
	c.checkpoint(ctx, q, domain.CheckpointSearchStart, nil)
	c.beat(ctx, q.ID)

	res, err := c.searcher.Search(ctx, query, rules)
	if err != nil {
		return nil, shopping.SearchLog{}, err
	}
	if err := c.repo.Quotes.SaveShoppingResponse(ctx, q.ID, res.RawJSON); err != nil {
		return nil, shopping.SearchLog{}, err
	}
	q.ShoppingJSON = res.RawJSON
	c.checkpoint(ctx, q, domain.CheckpointSearchDone, mustJSON(res.Log))

	if len(res.Calls) > 0 {
		if err := c.recorder.RecordCalls(ctx, q, domain.IntegrationShopping, toLedgerCalls(res.Calls)); err != nil {
			c.log.Warn().Err(err).Msg("aggregator cost booking failed")
		}
		c.metrics.ExternalCalls(string(domain.IntegrationShopping), len(res.Calls))
	}
	c.progress(ctx, q.ID, domain.StepSearchDone,
		fmt.Sprintf("%d candidatos após filtragem", res.Log.Kept))
	return res.Candidates, res.Log, nil
}

// runBlockSearch probes candidates under the block driver. Immersive
// calls spent by the probes are booked even when the run aborts.
func (c *Coordinator) runBlockSearch(ctx context.Context, q *domain.QuoteRequest, cfgv *domain.ProjectConfigVersion, pool []blocksearch.Candidate, rules *urlx.Rules) (blocksearch.Result, *probeRun, error) {
	c.progress(ctx, q.ID, domain.StepExtraction, "validando candidatos por blocos de preço")
	c.checkpoint(ctx, q, domain.CheckpointExtractionStart, mustJSON(domain.SearchStats{
		CandidatesTotal: len(pool),
		FinalVariation:  cfgv.MaxVariation(),
	}))

	// Sources persisted by an interrupted run seed the probe state, so
	// a resumed request completes instead of colliding with its own
	// earlier work.
	prior, err := c.repo.Sources.ListByRequest(ctx, q.ID)
	if err != nil {
		return blocksearch.Result{}, nil, err
	}
	pr := newProbeRun(c, q, cfgv, rules, len(pool), prior)
	heartbeat := func() {
		if err := c.repo.Quotes.Heartbeat(ctx, q.ID, c.workerID); err != nil {
			c.log.Warn().Err(err).Msg("heartbeat failed")
		}
	}
	probe := func(cand blocksearch.Candidate) (bool, error) {
		if err := c.ensureNotCancelled(ctx, q.ID); err != nil {
			return false, err
		}
		return pr.evaluate(ctx, cand)
	}

	res, runErr := blocksearch.Run(pool, blocksearch.Params{
		Required:         cfgv.NumberOfQuotes,
		InitialVariation: cfgv.MaxVariation(),
		EscalationStep:   blocksearch.DefaultEscalationStep,
		MaxEscalations:   blocksearch.DefaultMaxEscalations,
	}, probe, heartbeat)

	if len(pr.calls) > 0 {
		if err := c.recorder.RecordCalls(ctx, q, domain.IntegrationShopping, pr.calls); err != nil {
			c.log.Warn().Err(err).Msg("immersive cost booking failed")
		}
		c.metrics.ExternalCalls(string(domain.IntegrationShopping), len(pr.calls))
	}
	return res, pr, runErr
}

// finalize reconciles the winning block, derives the aggregates and
// assigns the terminal status.
func (c *Coordinator) finalize(ctx context.Context, q *domain.QuoteRequest, cfgv *domain.ProjectConfigVersion, res blocksearch.Result, pr *probeRun, start time.Time) error {
	c.progress(ctx, q.ID, domain.StepStats, "consolidando fontes validadas")

	urls := make([]string, 0, len(res.Accepted))
	prices := make([]decimal.Decimal, 0, len(res.Accepted))
	for _, cand := range res.Accepted {
		k := cand.Key()
		if u, ok := pr.urlByKey[k]; ok {
			urls = append(urls, u)
		}
		if p, ok := pr.priceByKey[k]; ok {
			prices = append(prices, p)
		}
	}
	if err := c.repo.Sources.ReconcileAccepted(ctx, q.ID, urls); err != nil {
		return err
	}

	if agg, ok := domain.ComputeAggregates(prices); ok {
		if err := c.repo.Quotes.SetAggregates(ctx, q.ID, agg); err != nil {
			return err
		}
		q.MeanPrice, q.MinPrice, q.MaxPrice, q.SpreadPercent = &agg.Mean, &agg.Min, &agg.Max, &agg.SpreadPercent
	}

	stats := domain.SearchStats{
		CandidatesTotal:    pr.total,
		CandidatesProbed:   res.Probed,
		Validated:          pr.validated,
		Failed:             pr.failed,
		ToleranceIncreases: res.ToleranceIncreases,
		FinalVariation:     res.FinalVariation,
		BlocksTried:        res.BlocksTried,
		UsedReserve:        res.UsedReserve,
	}
	c.checkpoint(ctx, q, domain.CheckpointFinalization, mustJSON(stats))
	c.progress(ctx, q.ID, domain.StepFinalize, "gerando resultado final")

	accepted := len(res.Accepted)
	status := domain.TerminalStatus(accepted, cfgv.NumberOfQuotes)
	var msg *string
	switch status {
	case domain.StatusAwaitingReview:
		msg = strptr(fmt.Sprintf("apenas %d de %d fontes validadas", accepted, cfgv.NumberOfQuotes))
	case domain.StatusError:
		msg = strptr("nenhuma fonte de preço pôde ser validada")
	}

	if status == domain.StatusDone {
		q.Status = status
		sources, err := c.repo.Sources.ListAccepted(ctx, q.ID)
		if err != nil {
			c.log.Warn().Err(err).Msg("accepted sources unavailable for document")
		} else {
			c.emitDocument(ctx, q, sources, nil)
		}
	}
	return c.finish(ctx, q, start, status, msg)
}

// finish writes the terminal status, respecting a concurrent cancel.
func (c *Coordinator) finish(ctx context.Context, q *domain.QuoteRequest, start time.Time, status domain.Status, errMsg *string) error {
	ok, err := c.repo.Quotes.Finish(ctx, q.ID, status, errMsg)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Info().Str("request_id", q.ID.String()).Msg("request was cancelled, terminal status preserved")
		c.metrics.Finished(string(domain.StatusCancelled), time.Since(start))
		return nil
	}
	tag := domain.CheckpointCompleted
	if status == domain.StatusError {
		tag = domain.CheckpointFailed
	}
	c.checkpoint(ctx, q, tag, nil)
	c.progress(ctx, q.ID, domain.StepDone, "processamento encerrado")
	c.metrics.Finished(string(status), time.Since(start))
	c.log.Info().
		Str("request_id", q.ID.String()).
		Str("status", string(status)).
		Dur("elapsed", time.Since(start)).
		Msg("quote request finished")
	return nil
}

// fail finalizes the request as ERROR with a user-facing message.
func (c *Coordinator) fail(ctx context.Context, q *domain.QuoteRequest, start time.Time, msg string, cause error) error {
	c.log.Error().Err(cause).Str("request_id", q.ID.String()).Msg(msg)
	return c.finish(ctx, q, start, domain.StatusError, &msg)
}

// emitDocument renders the final quotation document; failure degrades
// the result but never the status.
func (c *Coordinator) emitDocument(ctx context.Context, q *domain.QuoteRequest, sources []domain.QuoteSource, vehicle *domain.VehiclePrice) {
	if c.pdf == nil {
		return
	}
	if _, err := c.pdf.Generate(ctx, pdfsink.Input{Request: q, Sources: sources, Vehicle: vehicle}); err != nil {
		c.log.Warn().Err(err).Str("request_id", q.ID.String()).Msg("document generation failed")
	}
}

// ensureNotCancelled is the cancellation check run before every paid
// step and every probe.
func (c *Coordinator) ensureNotCancelled(ctx context.Context, id uuid.UUID) error {
	status, err := c.repo.Quotes.CurrentStatus(ctx, id)
	if err != nil {
		return err
	}
	if status == domain.StatusCancelled {
		return errCancelled
	}
	return nil
}

// loadRules assembles the per-request domain policy: the blocked
// sources table plus the configured manufacturer whitelist.
func (c *Coordinator) loadRules(ctx context.Context) (*urlx.Rules, error) {
	rows, err := c.repo.Blocked.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string)
	var extra []string
	for _, row := range rows {
		if row.SourceLabel != "" {
			labels[row.SourceLabel] = row.Domain
		} else if row.Domain != "" {
			extra = append(extra, row.Domain)
		}
	}
	return urlx.NewRules(labels, extra, c.whitelist), nil
}

func (c *Coordinator) progress(ctx context.Context, id uuid.UUID, step domain.ProgressStep, detail string) {
	if err := c.repo.Quotes.SetProgress(ctx, id, step, domain.ProgressPercent[step], detail); err != nil {
		c.log.Warn().Err(err).Str("step", string(step)).Msg("progress update failed")
	}
}

// checkpoint advances the durable tag. A resumed run replays earlier
// stages; their tags never move the stored checkpoint backwards.
func (c *Coordinator) checkpoint(ctx context.Context, q *domain.QuoteRequest, tag domain.CheckpointTag, payload []byte) {
	if q.Checkpoint != "" && tag.Before(q.Checkpoint) {
		return
	}
	if err := c.repo.Quotes.SetCheckpoint(ctx, q.ID, tag, payload); err != nil {
		c.log.Warn().Err(err).Str("tag", string(tag)).Msg("checkpoint write failed")
	}
	q.Checkpoint = tag
}

func (c *Coordinator) beat(ctx context.Context, id uuid.UUID) {
	if err := c.repo.Quotes.Heartbeat(ctx, id, c.workerID); err != nil {
		c.log.Warn().Err(err).Msg("heartbeat failed")
	}
}

func toLedgerCalls(in []shopping.APICall) []ledger.APICall {
	out := make([]ledger.APICall, len(in))
	for i, call := range in {
		out[i] = ledger.APICall{
			URL:          call.URL,
			ProductTitle: call.ProductTitle,
			StoreLink:    call.StoreLink,
			Activity:     call.Activity,
		}
	}
	return out
}

func fipeCalls(res *fipe.Result) []ledger.APICall {
	out := make([]ledger.APICall, len(res.Calls))
	for i, call := range res.Calls {
		out[i] = ledger.APICall{URL: call.URL, Activity: call.Activity}
	}
	return out
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func strptr(s string) *string { return &s }
