package fipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

// ErrNoMatch means the table has no vehicle recognizably matching the
// analysis; the caller decides whether a shopping fallback applies.
var ErrNoMatch = errors.New("veículo não encontrado na tabela FIPE")

// Call is one audited table call.
type Call struct {
	URL      string
	Activity string
}

// Result is a priced vehicle, with provenance.
type Result struct {
	Vehicle   *domain.VehiclePrice
	FromCache bool
	Calls     []Call
}

// Capturer produces the evidence screenshot; *Evidence in production.
type Capturer interface {
	Capture(ctx context.Context, vehicleType, codigoFipe, yearLabel string) ([]byte, error)
}

// Resolver runs the vehicle sub-pipeline: bank lookup, API resolution,
// evidence screenshot, bank UPSERT.
type Resolver struct {
	repo     persistence.VehicleRepo
	files    persistence.FilesRepo
	api      *API
	evidence Capturer
	blobs    *blobstore.Store
	vigency  time.Duration
	log      zerolog.Logger
}

// NewResolver wires the sub-pipeline.
func NewResolver(repo persistence.VehicleRepo, files persistence.FilesRepo, api *API,
	evidence Capturer, blobs *blobstore.Store, vigency time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		files:    files,
		api:      api,
		evidence: evidence,
		blobs:    blobs,
		vigency:  vigency,
		log:      log.With().Str("component", "fipe").Logger(),
	}
}

// Resolve prices one vehicle. A fresh bank row short-circuits the API
// entirely; otherwise the hierarchical resolution runs and its result
// is UPSERTed back. The evidence screenshot is best effort: its failure
// degrades the result but never fails the resolution.
func (r *Resolver) Resolve(ctx context.Context, params *domain.VehicleParams, requestID uuid.UUID) (*Result, error) {
	keywords := modelKeywords(params.Model)

	cached, err := r.repo.FindSimilar(ctx, params.Brand, keywords, params.Year, fuelFamily(params.Fuel))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if cached != nil && cached.Fresh(now, r.vigency) {
		r.log.Info().
			Str("codigo_fipe", cached.CodigoFipe).
			Str("year_id", cached.YearID).
			Msg("vehicle served from price bank")
		return &Result{Vehicle: cached, FromCache: true}, nil
	}

	res := &Result{}
	price, yearLabel, err := r.resolveAPI(ctx, params, res)
	if err != nil {
		return nil, err
	}

	parsed, ok := domain.ParseBRL(price.Valor)
	if !ok {
		return nil, fmt.Errorf("valor FIPE ilegível: %q", price.Valor)
	}

	vehicle := &domain.VehiclePrice{
		ID:             uuid.New(),
		CodigoFipe:     price.CodigoFipe,
		YearID:         yearID(price.AnoModelo, price.SiglaCombustivel),
		Brand:          price.Marca,
		Model:          price.Modelo,
		Year:           price.AnoModelo,
		Fuel:           price.Combustivel,
		Price:          parsed,
		ReferenceMonth: strings.TrimSpace(price.MesReferencia),
		LastAPICall:    now,
		UpdatedAt:      now,
	}

	if shot := r.captureEvidence(ctx, params.VehicleType, price.CodigoFipe, yearLabel, requestID); shot != nil {
		vehicle.ScreenshotID = shot
	}

	if err := r.repo.Upsert(ctx, vehicle); err != nil {
		return nil, err
	}
	res.Vehicle = vehicle
	return res, nil
}

// resolveAPI walks the table hierarchy: brand, year, model, price. The
// model-by-year listing is preferred; an empty answer falls back to the
// brand's whole catalog and re-derives the year from the model itself.
func (r *Resolver) resolveAPI(ctx context.Context, params *domain.VehicleParams, res *Result) (*PriceResult, string, error) {
	table, err := r.api.ReferenceTable(ctx)
	if err != nil {
		return nil, "", err
	}
	res.add(r.api, "ConsultarTabelaDeReferencia")

	brands, cachedBrands, err := r.api.Brands(ctx, table, params.VehicleType)
	if err != nil {
		return nil, "", err
	}
	if !cachedBrands {
		res.add(r.api, "ConsultarMarcas")
	}
	brand, ok := matchBrand(brandTerms(params), brands)
	if !ok {
		return nil, "", fmt.Errorf("%w: marca %q", ErrNoMatch, params.Brand)
	}

	_, years, cachedCatalog, err := r.api.Catalog(ctx, table, params.VehicleType, brand.Value)
	if err != nil {
		return nil, "", err
	}
	if !cachedCatalog {
		res.add(r.api, "ConsultarModelos")
	}
	year, ok := matchYear(params.Year, params.Fuel, years)
	if !ok {
		return nil, "", fmt.Errorf("%w: ano %d da marca %s", ErrNoMatch, params.Year, brand.Label)
	}

	models, err := r.api.ModelsByYear(ctx, table, params.VehicleType, brand.Value, year.Value)
	if err != nil {
		return nil, "", err
	}
	res.add(r.api, "ConsultarModelosAtravesDoAno")

	model, ok := matchModel(params.Model, models)
	if !ok {
		model, year, err = r.fallbackModel(ctx, table, params, brand, res)
		if err != nil {
			return nil, "", err
		}
	}

	price, err := r.api.Price(ctx, table, params.VehicleType, brand.Value, model.Value, year.Value)
	if err != nil {
		return nil, "", err
	}
	res.add(r.api, "ConsultarValorComTodosParametros")

	r.log.Info().
		Str("brand", brand.Label).
		Str("model", model.Label).
		Str("year", year.Label).
		Str("codigo_fipe", price.CodigoFipe).
		Msg("vehicle resolved via FIPE API")
	return price, year.Label, nil
}

// fallbackModel re-matches against the brand's untyped model catalog
// and derives the year from the matched model's own year listing.
func (r *Resolver) fallbackModel(ctx context.Context, table int, params *domain.VehicleParams, brand Item, res *Result) (Item, Item, error) {
	models, _, cached, err := r.api.Catalog(ctx, table, params.VehicleType, brand.Value)
	if err != nil {
		return Item{}, Item{}, err
	}
	if !cached {
		res.add(r.api, "ConsultarModelos")
	}
	model, ok := matchModel(params.Model, models)
	if !ok {
		return Item{}, Item{}, fmt.Errorf("%w: modelo %q da marca %s", ErrNoMatch, params.Model, brand.Label)
	}
	years, err := r.api.YearsOfModel(ctx, table, params.VehicleType, brand.Value, model.Value)
	if err != nil {
		return Item{}, Item{}, err
	}
	res.add(r.api, "ConsultarAnoModelo")
	year, ok := matchYear(params.Year, params.Fuel, years)
	if !ok {
		return Item{}, Item{}, fmt.Errorf("%w: ano %d do modelo %s", ErrNoMatch, params.Year, model.Label)
	}
	return model, year, nil
}

// captureEvidence drives the public site and stores the screenshot.
// Any failure logs and returns nil; the quotation completes degraded.
func (r *Resolver) captureEvidence(ctx context.Context, vehicleType, codigoFipe, yearLabel string, requestID uuid.UUID) *uuid.UUID {
	shot, err := r.evidence.Capture(ctx, vehicleType, codigoFipe, yearLabel)
	if err != nil {
		r.log.Warn().Err(err).Str("codigo_fipe", codigoFipe).Msg("evidence capture failed, completing without screenshot")
		return nil
	}
	name := fmt.Sprintf("fipe_%s_%s", requestID, strings.ReplaceAll(codigoFipe, "-", ""))
	f, err := r.blobs.PutFipe(name, "image/png", "png", shot)
	if err != nil {
		r.log.Warn().Err(err).Msg("evidence blob write failed")
		return nil
	}
	if err := r.files.Insert(ctx, f); err != nil {
		r.log.Warn().Err(err).Msg("evidence file row failed")
		return nil
	}
	return &f.ID
}

func (res *Result) add(api *API, endpoint string) {
	res.Calls = append(res.Calls, Call{
		URL:      api.EndpointURL(endpoint),
		Activity: "fipe_" + strings.ToLower(endpoint),
	})
}

// brandTerms are the candidate strings for brand matching: the brand
// itself plus the model's leading word, which analyses sometimes put on
// the wrong side.
func brandTerms(params *domain.VehicleParams) []string {
	terms := []string{params.Brand}
	if fields := strings.Fields(params.Model); len(fields) > 0 {
		terms = append(terms, fields[0])
	}
	return terms
}

// modelKeywords keeps the words usable for ILIKE matching.
func modelKeywords(model string) []string {
	var out []string
	for _, w := range strings.Fields(model) {
		if len(w) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

// fuelFamily folds fuel variants into the family the bank stores.
func fuelFamily(fuel string) string {
	f := normalize(fuel)
	switch {
	case strings.Contains(f, "diesel"):
		return "diesel"
	case strings.Contains(f, "flex"), strings.Contains(f, "alcool"), strings.Contains(f, "etanol"):
		return "flex"
	case strings.Contains(f, "gasolina"):
		return "gasolina"
	case strings.Contains(f, "eletr"):
		return "eletrico"
	}
	return ""
}

// yearID rebuilds the (year, fuel) key of the bank from the price row.
func yearID(year int, fuelSigla string) string {
	code := "1"
	switch strings.ToUpper(strings.TrimSpace(fuelSigla)) {
	case "A":
		code = "2"
	case "D":
		code = "3"
	}
	return fmt.Sprintf("%d-%s", year, code)
}
