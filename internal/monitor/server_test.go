package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
	"github.com/licitaware/cotador/internal/telemetry"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeQuotes struct {
	persistence.QuotesRepo
	byID map[uuid.UUID]*domain.QuoteRequest
}

func (f *fakeQuotes) Get(_ context.Context, id uuid.UUID) (*domain.QuoteRequest, error) {
	q, ok := f.byID[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuotes) ListByBatch(context.Context, uuid.UUID) ([]domain.QuoteRequest, error) {
	return nil, nil
}

type fakeSources struct {
	persistence.SourcesRepo
	sources []domain.QuoteSource
}

func (f *fakeSources) ListByRequest(context.Context, uuid.UUID) ([]domain.QuoteSource, error) {
	return f.sources, nil
}

type fakeBatch struct {
	persistence.BatchRepo
	job *domain.BatchJob
}

func (f *fakeBatch) Get(_ context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, persistence.ErrNotFound
	}
	return f.job, nil
}

func newServer(dbErr error) (*Server, *fakeQuotes, *fakeSources, *fakeBatch) {
	quotes := &fakeQuotes{byID: map[uuid.UUID]*domain.QuoteRequest{}}
	sources := &fakeSources{}
	batch := &fakeBatch{}
	srv := New(
		fakePinger{err: dbErr},
		nil, // no redis: cache degrades, health still answers
		&persistence.Repository{Quotes: quotes, Sources: sources, Batch: batch},
		telemetry.New(),
		zerolog.Nop(),
	)
	return srv, quotes, sources, batch
}

func TestHealthOK(t *testing.T) {
	srv, _, _, _ := newServer(nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Database)
	assert.False(t, resp.Cache.Connected)
}

func TestHealthDegradedOnDatabaseFailure(t *testing.T) {
	srv, _, _, _ := newServer(fmt.Errorf("conexão recusada"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newServer(nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestLookup(t *testing.T) {
	srv, quotes, sources, _ := newServer(nil)
	id := uuid.New()
	mean := decimal.NewFromInt(102)
	quotes.byID[id] = &domain.QuoteRequest{
		ID:              id,
		Status:          domain.StatusDone,
		ProgressPercent: 100,
		MeanPrice:       &mean,
		CreatedAt:       time.Now().UTC(),
	}
	sources.sources = []domain.QuoteSource{{ID: uuid.New(), QuoteRequestID: id, URL: "https://www.loja.com.br/p"}}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Request.ID)
	assert.Equal(t, domain.StatusDone, resp.Request.Status)
	require.Len(t, resp.Sources, 1)
}

func TestRequestLookupErrors(t *testing.T) {
	srv, _, _, _ := newServer(nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchLookup(t *testing.T) {
	srv, _, _, batch := newServer(nil)
	batch.job = &domain.BatchJob{ID: uuid.New(), Status: domain.BatchCompleted, TotalCount: 2, CompletedCount: 2}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batches/"+batch.job.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "COMPLETED")
}
