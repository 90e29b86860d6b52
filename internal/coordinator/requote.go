package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/licitaware/cotador/internal/domain"
)

// Requote creates a fresh child request re-running a failed or
// cancelled one under the project's current configuration. The chain is
// collapsed: every attempt points at the original root, and at most one
// child may exist per request.
func (c *Coordinator) Requote(ctx context.Context, id uuid.UUID) (*domain.QuoteRequest, error) {
	orig, err := c.repo.Quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.Status != domain.StatusCancelled && orig.Status != domain.StatusError {
		return nil, fmt.Errorf("recotação exige status CANCELLED ou ERROR, requisição está %s", orig.Status)
	}
	hasChild, err := c.repo.Quotes.HasChild(ctx, id)
	if err != nil {
		return nil, err
	}
	if hasChild {
		return nil, fmt.Errorf("requisição %s já possui uma recotação", id)
	}

	cfgv, err := c.repo.Config.LatestForProject(ctx, orig.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("configuração vigente indisponível: %w", err)
	}

	root := domain.RequoteRoot(orig)
	child := &domain.QuoteRequest{
		ID:              uuid.New(),
		InputText:       orig.InputText,
		InputType:       orig.InputType,
		InputImages:     orig.InputImages,
		ProjectID:       orig.ProjectID,
		ClientID:        orig.ClientID,
		ConfigVersionID: cfgv.ID,
		OriginalQuoteID: &root,
		AttemptNumber:   orig.AttemptNumber + 1,
		CodigoItem:      orig.CodigoItem,
		Local:           orig.Local,
		Pesquisador:     orig.Pesquisador,
		Status:          domain.StatusProcessing,
	}
	if err := c.repo.Quotes.Create(ctx, child); err != nil {
		return nil, err
	}
	c.log.Info().
		Str("original_id", id.String()).
		Str("root_id", root.String()).
		Str("child_id", child.ID.String()).
		Int("attempt", child.AttemptNumber).
		Msg("re-quote created")
	return child, nil
}
