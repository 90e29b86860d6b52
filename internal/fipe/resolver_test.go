package fipe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/domain"
)

type fakeVehicleRepo struct {
	similar  *domain.VehiclePrice
	upserted *domain.VehiclePrice
}

func (f *fakeVehicleRepo) FindSimilar(context.Context, string, []string, int, string) (*domain.VehiclePrice, error) {
	return f.similar, nil
}

func (f *fakeVehicleRepo) Upsert(_ context.Context, v *domain.VehiclePrice) error {
	f.upserted = v
	return nil
}

type fakeFilesRepo struct {
	inserted []*domain.File
}

func (f *fakeFilesRepo) Insert(_ context.Context, file *domain.File) error {
	f.inserted = append(f.inserted, file)
	return nil
}

func (f *fakeFilesRepo) Get(context.Context, uuid.UUID) (*domain.File, error) {
	return nil, errors.New("not implemented")
}

type fakeCapturer struct {
	shot []byte
	err  error
}

func (f *fakeCapturer) Capture(context.Context, string, string, string) ([]byte, error) {
	return f.shot, f.err
}

// fipeServer stubs the table endpoints; modelsByYearEmpty forces the
// untyped-catalog fallback.
func fipeServer(t *testing.T, hits *atomic.Int32, modelsByYearEmpty bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body any
		switch r.URL.Path {
		case "/ConsultarTabelaDeReferencia":
			body = []map[string]any{{"Codigo": 324, "Mes": "agosto de 2025"}}
		case "/ConsultarMarcas":
			body = []Item{{Label: "Fiat", Value: "21"}, {Label: "VW - VolksWagen", Value: "59"}}
		case "/ConsultarModelos":
			body = map[string]any{
				"Modelos": []Item{{Label: "UNO VIVACE 1.0 EVO Fire Flex 8V 5p", Value: "5213"}},
				"Anos":    []Item{{Label: "2020 Gasolina", Value: "2020-1"}},
			}
		case "/ConsultarModelosAtravesDoAno":
			if modelsByYearEmpty {
				body = []Item{}
			} else {
				body = []Item{{Label: "UNO VIVACE 1.0 EVO Fire Flex 8V 5p", Value: "5213"}}
			}
		case "/ConsultarAnoModelo":
			body = []Item{{Label: "2020 Gasolina", Value: "2020-1"}}
		case "/ConsultarValorComTodosParametros":
			body = PriceResult{
				Valor:            "R$ 30.000,00",
				Marca:            "Fiat",
				Modelo:           "UNO VIVACE 1.0 EVO Fire Flex 8V 5p",
				AnoModelo:        2020,
				Combustivel:      "Gasolina",
				CodigoFipe:       "001462-1",
				MesReferencia:    "agosto de 2025 ",
				SiglaCombustivel: "G",
			}
		default:
			t.Errorf("unexpected endpoint %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(body)
	}))
}

func newTestResolver(t *testing.T, baseURL string, repo *fakeVehicleRepo, files *fakeFilesRepo, cap Capturer) *Resolver {
	t.Helper()
	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	api := NewAPI(config.FipeConfig{BaseURL: baseURL, Timeout: 5 * time.Second, CatalogTTL: time.Hour}, nil, zerolog.Nop())
	return NewResolver(repo, files, api, cap, blobs, 6*30*24*time.Hour, zerolog.Nop())
}

var unoParams = &domain.VehicleParams{
	Brand:       "Fiat",
	Model:       "Uno Vivace",
	Year:        2020,
	Fuel:        "Gasolina",
	VehicleType: "carros",
}

func TestResolveServesFreshBankRow(t *testing.T) {
	var hits atomic.Int32
	srv := fipeServer(t, &hits, false)
	defer srv.Close()

	repo := &fakeVehicleRepo{similar: &domain.VehiclePrice{
		CodigoFipe: "001462-1",
		YearID:     "2020-1",
		Price:      decimal.NewFromInt(30000),
		UpdatedAt:  time.Now().UTC().Add(-24 * time.Hour),
	}}
	r := newTestResolver(t, srv.URL, repo, &fakeFilesRepo{}, &fakeCapturer{})

	res, err := r.Resolve(context.Background(), unoParams, uuid.New())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Empty(t, res.Calls)
	assert.Equal(t, int32(0), hits.Load(), "fresh bank row must not touch the API")
	assert.Nil(t, repo.upserted)
}

func TestResolveStaleRowRefreshesViaAPI(t *testing.T) {
	var hits atomic.Int32
	srv := fipeServer(t, &hits, false)
	defer srv.Close()

	repo := &fakeVehicleRepo{similar: &domain.VehiclePrice{
		CodigoFipe: "001462-1",
		YearID:     "2020-1",
		UpdatedAt:  time.Now().UTC().Add(-8 * 30 * 24 * time.Hour),
	}}
	files := &fakeFilesRepo{}
	r := newTestResolver(t, srv.URL, repo, files, &fakeCapturer{shot: []byte("png-bytes")})

	res, err := r.Resolve(context.Background(), unoParams, uuid.New())
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	require.NotNil(t, repo.upserted)
	v := repo.upserted
	assert.Equal(t, "001462-1", v.CodigoFipe)
	assert.Equal(t, "2020-1", v.YearID)
	assert.True(t, v.Price.Equal(decimal.NewFromInt(30000)), v.Price.String())
	assert.Equal(t, "agosto de 2025", v.ReferenceMonth)
	require.NotNil(t, v.ScreenshotID)
	require.Len(t, files.inserted, 1)
	assert.Equal(t, *v.ScreenshotID, files.inserted[0].ID)

	activities := make([]string, 0, len(res.Calls))
	for _, c := range res.Calls {
		activities = append(activities, c.Activity)
	}
	assert.Contains(t, activities, "fipe_consultarmarcas")
	assert.Contains(t, activities, "fipe_consultarvalorcomtodosparametros")
}

func TestResolveFallsBackToUntypedCatalog(t *testing.T) {
	var hits atomic.Int32
	srv := fipeServer(t, &hits, true)
	defer srv.Close()

	repo := &fakeVehicleRepo{}
	r := newTestResolver(t, srv.URL, repo, &fakeFilesRepo{}, &fakeCapturer{shot: []byte("png")})

	res, err := r.Resolve(context.Background(), unoParams, uuid.New())
	require.NoError(t, err)

	activities := make([]string, 0, len(res.Calls))
	for _, c := range res.Calls {
		activities = append(activities, c.Activity)
	}
	assert.Contains(t, activities, "fipe_consultaranomodelo")
	require.NotNil(t, repo.upserted)
}

func TestResolveUnknownBrandIsNoMatch(t *testing.T) {
	var hits atomic.Int32
	srv := fipeServer(t, &hits, false)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, &fakeVehicleRepo{}, &fakeFilesRepo{}, &fakeCapturer{})
	params := *unoParams
	params.Brand = "marca inexistente qq"
	params.Model = "xyz abc"

	_, err := r.Resolve(context.Background(), &params, uuid.New())
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestResolveCompletesWithoutScreenshot(t *testing.T) {
	var hits atomic.Int32
	srv := fipeServer(t, &hits, false)
	defer srv.Close()

	repo := &fakeVehicleRepo{}
	r := newTestResolver(t, srv.URL, repo, &fakeFilesRepo{}, &fakeCapturer{err: errors.New("site down")})

	_, err := r.Resolve(context.Background(), unoParams, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, repo.upserted)
	assert.Nil(t, repo.upserted.ScreenshotID)
}
