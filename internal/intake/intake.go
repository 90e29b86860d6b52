// Package intake creates quote requests: single text or image items
// and batches. Every request is frozen to a ProjectConfigVersion at
// creation; configuration changes never touch in-flight work.
package intake

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

// Item is one request to be created.
type Item struct {
	Text        string
	Images      [][]byte // raw image bytes, stored as blobs
	ImageNames  []string // original filenames, for mime detection
	CodigoItem  *string
	Local       *string
	Pesquisador *string
}

// Service creates requests and batches.
type Service struct {
	repo     *persistence.Repository
	blobs    *blobstore.Store
	defaults config.QuotesConfig
	log      zerolog.Logger
}

// New wires the intake service.
func New(repo *persistence.Repository, blobs *blobstore.Store, defaults config.QuotesConfig, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		defaults: defaults,
		log:      log.With().Str("component", "intake").Logger(),
	}
}

// CreateOne creates a single PROCESSING request.
func (s *Service) CreateOne(ctx context.Context, projectID, clientID *uuid.UUID, item Item) (*domain.QuoteRequest, error) {
	cfgv, err := s.configVersion(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, projectID, clientID, cfgv, nil, item)
}

// CreateBatch creates the batch job plus one child request per item.
// Children enter the same claim queue as single requests.
func (s *Service) CreateBatch(ctx context.Context, projectID, clientID *uuid.UUID, items []Item) (*domain.BatchJob, []domain.QuoteRequest, error) {
	if len(items) == 0 {
		return nil, nil, errors.New("lote sem itens")
	}
	cfgv, err := s.configVersion(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	batch := &domain.BatchJob{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Status:     domain.BatchProcessing,
		TotalCount: len(items),
	}
	if err := s.repo.Batch.Create(ctx, batch); err != nil {
		return nil, nil, err
	}

	children := make([]domain.QuoteRequest, 0, len(items))
	for i, item := range items {
		q, err := s.create(ctx, projectID, clientID, cfgv, &batch.ID, item)
		if err != nil {
			return nil, nil, fmt.Errorf("criando item %d do lote: %w", i+1, err)
		}
		children = append(children, *q)
	}
	s.log.Info().
		Str("batch_id", batch.ID.String()).
		Int("items", len(items)).
		Msg("batch created")
	return batch, children, nil
}

func (s *Service) create(ctx context.Context, projectID, clientID *uuid.UUID, cfgv *domain.ProjectConfigVersion, batchID *uuid.UUID, item Item) (*domain.QuoteRequest, error) {
	text := strings.TrimSpace(item.Text)
	if text == "" && len(item.Images) == 0 {
		return nil, errors.New("requisição sem descrição e sem imagens")
	}

	q := &domain.QuoteRequest{
		ID:              uuid.New(),
		InputText:       text,
		InputType:       inputType(item, batchID != nil),
		ProjectID:       projectID,
		ClientID:        clientID,
		ConfigVersionID: cfgv.ID,
		BatchJobID:      batchID,
		CodigoItem:      item.CodigoItem,
		Local:           item.Local,
		Pesquisador:     item.Pesquisador,
		Status:          domain.StatusProcessing,
		AttemptNumber:   1,
	}

	for i, content := range item.Images {
		name := fmt.Sprintf("input_%s_%d", q.ID, i)
		ext := "jpg"
		if i < len(item.ImageNames) {
			if e := strings.TrimPrefix(filepath.Ext(item.ImageNames[i]), "."); e != "" {
				ext = strings.ToLower(e)
			}
		}
		f, err := s.blobs.Put(domain.FileInputImage, name, mimeFor(ext), ext, content)
		if err != nil {
			return nil, fmt.Errorf("gravando imagem de entrada: %w", err)
		}
		if err := s.repo.Files.Insert(ctx, f); err != nil {
			return nil, err
		}
		q.InputImages = append(q.InputImages, f.StoragePath)
	}

	if err := s.repo.Quotes.Create(ctx, q); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("request_id", q.ID.String()).
		Str("input_type", string(q.InputType)).
		Msg("quote request created")
	return q, nil
}

// configVersion resolves the project's current snapshot, seeding one
// from the process defaults when the project has none yet.
func (s *Service) configVersion(ctx context.Context, projectID *uuid.UUID) (*domain.ProjectConfigVersion, error) {
	v, err := s.repo.Config.LatestForProject(ctx, projectID)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}

	seeded := &domain.ProjectConfigVersion{
		ID:                   uuid.New(),
		ProjectID:            projectID,
		Version:              1,
		NumberOfQuotes:       s.defaults.NumberOfQuotes,
		MaxVariationPercent:  s.defaults.MaxVariationPercent,
		PriceMismatchCheck:   s.defaults.EnablePriceMismatch,
		SearchLocation:       "Brazil",
		SearchLanguage:       "pt-br",
		SearchCountry:        "br",
		EnableSpecExtraction: s.defaults.EnableSpecExtraction,
		EnableSpecValidation: s.defaults.EnableSpecValidation,
		EnableLinearMeter:    s.defaults.EnableLinearMeter,
	}
	if err := s.repo.Config.CreateVersion(ctx, seeded); err != nil {
		return nil, err
	}
	s.log.Info().Str("version_id", seeded.ID.String()).Msg("seeded config version from defaults")
	return seeded, nil
}

func inputType(item Item, batch bool) domain.InputType {
	switch {
	case batch && len(item.Images) > 0:
		return domain.InputImageBatch
	case batch:
		return domain.InputTextBatch
	case len(item.Images) > 0:
		return domain.InputImage
	default:
		return domain.InputText
	}
}

func mimeFor(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
