package fipe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/cache"
	"github.com/licitaware/cotador/internal/config"
)

// Vehicle type codes of the table.
var vehicleTypeCodes = map[string]string{
	"carros":    "1",
	"motos":     "2",
	"caminhoes": "3",
}

// Item is one label/value pair of the table's catalog endpoints.
type Item struct {
	Label string `json:"Label"`
	Value string `json:"Value"`
}

type referenceTable struct {
	Codigo int    `json:"Codigo"`
	Mes    string `json:"Mes"`
}

type modelsResponse struct {
	Modelos []Item `json:"Modelos"`
	Anos    []Item `json:"Anos"`
}

// PriceResult is the table's price answer for one exact vehicle.
type PriceResult struct {
	Valor            string `json:"Valor"` // "R$ 30.000,00"
	Marca            string `json:"Marca"`
	Modelo           string `json:"Modelo"`
	AnoModelo        int    `json:"AnoModelo"`
	Combustivel      string `json:"Combustivel"`
	CodigoFipe       string `json:"CodigoFipe"`
	MesReferencia    string `json:"MesReferencia"`
	TipoVeiculo      int    `json:"TipoVeiculo"`
	SiglaCombustivel string `json:"SiglaCombustivel"`
}

// API calls the public vehicle-table endpoints: form-encoded POSTs,
// no authentication, one fixed reference table per run. Catalog
// listings are cached; the price endpoint never is.
type API struct {
	baseURL    string
	http       *http.Client
	cache      *cache.Cache
	catalogTTL time.Duration
	log        zerolog.Logger
}

// NewAPI wires the table client.
func NewAPI(cfg config.FipeConfig, c *cache.Cache, log zerolog.Logger) *API {
	return &API{
		baseURL:    cfg.BaseURL,
		http:       &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		catalogTTL: cfg.CatalogTTL,
		log:        log.With().Str("component", "fipe_api").Logger(),
	}
}

// ReferenceTable returns the code of the current reference month.
func (a *API) ReferenceTable(ctx context.Context) (int, error) {
	var tables []referenceTable
	if err := a.post(ctx, "ConsultarTabelaDeReferencia", url.Values{}, &tables); err != nil {
		return 0, err
	}
	if len(tables) == 0 {
		return 0, fmt.Errorf("tabela FIPE sem meses de referência")
	}
	// First entry is the current month.
	return tables[0].Codigo, nil
}

// Brands lists the brands of one vehicle type. The second return
// reports a cache hit, which costs no HTTP call.
func (a *API) Brands(ctx context.Context, table int, vehicleType string) ([]Item, bool, error) {
	code, err := typeCode(vehicleType)
	if err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("fipe:brands:%d:%s", table, code)
	var brands []Item
	if a.cache.Get(ctx, key, &brands) {
		return brands, true, nil
	}
	form := url.Values{
		"codigoTabelaReferencia": {fmt.Sprint(table)},
		"codigoTipoVeiculo":      {code},
	}
	if err := a.post(ctx, "ConsultarMarcas", form, &brands); err != nil {
		return nil, false, err
	}
	a.cache.Set(ctx, key, "fipe", brands, a.catalogTTL)
	return brands, false, nil
}

// ModelsByYear lists the models of a brand restricted to one year code
// ("2020-1"). Empty result is not an error; the caller falls back to
// the untyped listing.
func (a *API) ModelsByYear(ctx context.Context, table int, vehicleType, brandCode, yearCode string) ([]Item, error) {
	code, err := typeCode(vehicleType)
	if err != nil {
		return nil, err
	}
	year, fuel := splitYearCode(yearCode)
	form := url.Values{
		"codigoTabelaReferencia": {fmt.Sprint(table)},
		"codigoTipoVeiculo":      {code},
		"codigoMarca":            {brandCode},
		"ano":                    {yearCode},
		"anoModelo":              {year},
		"codigoTipoCombustivel":  {fuel},
	}
	var models []Item
	if err := a.post(ctx, "ConsultarModelosAtravesDoAno", form, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// Catalog lists every model and every year code of a brand. The third
// return reports a cache hit.
func (a *API) Catalog(ctx context.Context, table int, vehicleType, brandCode string) (models, years []Item, cached bool, err error) {
	code, err := typeCode(vehicleType)
	if err != nil {
		return nil, nil, false, err
	}
	key := fmt.Sprintf("fipe:catalog:%d:%s:%s", table, code, brandCode)
	var resp modelsResponse
	if a.cache.Get(ctx, key, &resp) {
		return resp.Modelos, resp.Anos, true, nil
	}
	form := url.Values{
		"codigoTabelaReferencia": {fmt.Sprint(table)},
		"codigoTipoVeiculo":      {code},
		"codigoMarca":            {brandCode},
	}
	if err := a.post(ctx, "ConsultarModelos", form, &resp); err != nil {
		return nil, nil, false, err
	}
	a.cache.Set(ctx, key, "fipe", resp, a.catalogTTL)
	return resp.Modelos, resp.Anos, false, nil
}

// YearsOfModel lists the year codes one model is sold under.
func (a *API) YearsOfModel(ctx context.Context, table int, vehicleType, brandCode, modelCode string) ([]Item, error) {
	code, err := typeCode(vehicleType)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"codigoTabelaReferencia": {fmt.Sprint(table)},
		"codigoTipoVeiculo":      {code},
		"codigoMarca":            {brandCode},
		"codigoModelo":           {modelCode},
	}
	var years []Item
	if err := a.post(ctx, "ConsultarAnoModelo", form, &years); err != nil {
		return nil, err
	}
	return years, nil
}

// Price fetches the priced row for one exact (brand, model, year code).
func (a *API) Price(ctx context.Context, table int, vehicleType, brandCode, modelCode, yearCode string) (*PriceResult, error) {
	code, err := typeCode(vehicleType)
	if err != nil {
		return nil, err
	}
	year, fuel := splitYearCode(yearCode)
	form := url.Values{
		"codigoTabelaReferencia": {fmt.Sprint(table)},
		"codigoTipoVeiculo":      {code},
		"codigoMarca":            {brandCode},
		"codigoModelo":           {modelCode},
		"anoModelo":              {year},
		"codigoTipoCombustivel":  {fuel},
		"tipoConsulta":           {"tradicional"},
	}
	var res PriceResult
	if err := a.post(ctx, "ConsultarValorComTodosParametros", form, &res); err != nil {
		return nil, err
	}
	if res.Valor == "" || res.CodigoFipe == "" {
		return nil, fmt.Errorf("tabela FIPE devolveu resposta sem valor")
	}
	return &res, nil
}

// EndpointURL returns the full URL of one endpoint, for audit rows.
func (a *API) EndpointURL(name string) string {
	return a.baseURL + "/" + name
}

func typeCode(vehicleType string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(vehicleType))
	if t == "" {
		t = "carros"
	}
	code, ok := vehicleTypeCodes[t]
	if !ok {
		return "", fmt.Errorf("tipo de veículo desconhecido: %q", vehicleType)
	}
	return code, nil
}

// splitYearCode breaks "2020-1" into year and fuel code.
func splitYearCode(yearCode string) (year, fuel string) {
	year, fuel, ok := strings.Cut(yearCode, "-")
	if !ok {
		return yearCode, "1"
	}
	return year, fuel
}

func (a *API) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://veiculos.fipe.org.br/")

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("consulta FIPE %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("consulta FIPE %s: HTTP %d: %s", endpoint, resp.StatusCode, b)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// The table answers errors as 200 with an erro field.
	var apiErr struct {
		Erro string `json:"erro"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Erro != "" {
		return fmt.Errorf("consulta FIPE %s: %s", endpoint, apiErr.Erro)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decodificando resposta FIPE %s: %w", endpoint, err)
	}
	a.log.Debug().Str("endpoint", endpoint).Dur("elapsed", time.Since(start)).Msg("fipe call")
	return nil
}
