// Package pdfsink is the document-emission boundary. The engine hands
// the finalized quotation over and receives a File ref back; layout is
// a collaborator concern.
package pdfsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

// Input is everything the document carries.
type Input struct {
	Request *domain.QuoteRequest
	Sources []domain.QuoteSource
	Vehicle *domain.VehiclePrice
}

// Generator renders the final quotation document.
type Generator interface {
	Generate(ctx context.Context, in Input) (*domain.File, error)
}

// DocumentSink is the built-in generator: it emits the quotation as a
// structured JSON document into the blob store. An external PDF
// renderer replaces it behind the same interface.
type DocumentSink struct {
	blobs *blobstore.Store
	files persistence.FilesRepo
}

// NewDocumentSink wires the built-in generator.
func NewDocumentSink(blobs *blobstore.Store, files persistence.FilesRepo) *DocumentSink {
	return &DocumentSink{blobs: blobs, files: files}
}

type document struct {
	GeneratedAt time.Time            `json:"generated_at"`
	RequestID   string               `json:"request_id"`
	InputText   string               `json:"input_text"`
	Status      domain.Status        `json:"status"`
	Mean        string               `json:"mean,omitempty"`
	Min         string               `json:"min,omitempty"`
	Max         string               `json:"max,omitempty"`
	Spread      string               `json:"spread_percent,omitempty"`
	Sources     []domain.QuoteSource `json:"sources"`
	Vehicle     *domain.VehiclePrice `json:"vehicle,omitempty"`
}

// Generate writes the document blob and its File row.
func (s *DocumentSink) Generate(ctx context.Context, in Input) (*domain.File, error) {
	doc := document{
		GeneratedAt: time.Now().UTC(),
		RequestID:   in.Request.ID.String(),
		InputText:   in.Request.InputText,
		Status:      in.Request.Status,
		Sources:     in.Sources,
		Vehicle:     in.Vehicle,
	}
	if in.Request.MeanPrice != nil {
		doc.Mean = in.Request.MeanPrice.StringFixed(2)
	}
	if in.Request.MinPrice != nil {
		doc.Min = in.Request.MinPrice.StringFixed(2)
	}
	if in.Request.MaxPrice != nil {
		doc.Max = in.Request.MaxPrice.StringFixed(2)
	}
	if in.Request.SpreadPercent != nil {
		doc.Spread = in.Request.SpreadPercent.StringFixed(2)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("montando documento: %w", err)
	}
	f, err := s.blobs.Put(domain.FileGeneratedDocument,
		fmt.Sprintf("cotacao_%s", in.Request.ID), "application/json", "json", payload)
	if err != nil {
		return nil, err
	}
	if err := s.files.Insert(ctx, f); err != nil {
		return nil, err
	}
	log.Debug().Str("request_id", doc.RequestID).Str("path", f.StoragePath).Msg("quotation document emitted")
	return f, nil
}
