// Package worker runs the claim loop: a fixed pool of goroutines
// polling for claimable quote requests and handing each to the
// coordinator under a wall-clock budget. Crash recovery needs no extra
// machinery; an expired lease makes the request claimable again and the
// checkpoints make the re-run cheap.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

// Processor executes one claimed quote request.
type Processor interface {
	Process(ctx context.Context, id uuid.UUID) error
}

// Pool is the worker pool.
type Pool struct {
	repo       *persistence.Repository
	proc       Processor
	size       int
	poll       time.Duration
	liveness   time.Duration
	wallBudget time.Duration
	log        zerolog.Logger
}

// New builds the pool from configuration.
func New(repo *persistence.Repository, proc Processor, cfg config.WorkerConfig, log zerolog.Logger) *Pool {
	return &Pool{
		repo:       repo,
		proc:       proc,
		size:       cfg.PoolSize,
		poll:       cfg.PollInterval,
		liveness:   cfg.Liveness,
		wallBudget: cfg.WallBudget,
		log:        log.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is cancelled, then drains: requests already
// being processed run to completion or to their wall budget.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info().
		Int("pool_size", p.size).
		Dur("poll_interval", p.poll).
		Dur("wall_budget", p.wallBudget).
		Msg("worker pool started")

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.loop(ctx, n)
		}(i)
	}
	wg.Wait()
	p.log.Info().Msg("worker pool drained")
}

func (p *Pool) loop(ctx context.Context, n int) {
	log := p.log.With().Int("worker", n).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		q, err := p.repo.Quotes.NextClaimable(ctx, p.liveness)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn().Err(err).Msg("polling for claimable requests failed")
			p.sleep(ctx)
			continue
		}
		if q == nil {
			p.sleep(ctx)
			continue
		}
		p.runOne(ctx, log, q)
	}
}

// runOne processes one request under the wall budget. Batch counters
// are recomputed after every child run that reached a terminal state.
func (p *Pool) runOne(ctx context.Context, log zerolog.Logger, q *domain.QuoteRequest) {
	runCtx, cancel := context.WithTimeout(ctx, p.wallBudget)
	defer cancel()

	if err := p.proc.Process(runCtx, q.ID); err != nil {
		log.Error().Err(err).Str("request_id", q.ID.String()).Msg("request processing failed")
	}
	if q.BatchJobID != nil {
		p.recompute(ctx, log, *q.BatchJobID)
	}
}

func (p *Pool) recompute(ctx context.Context, log zerolog.Logger, batchID uuid.UUID) {
	b, err := p.repo.Batch.Recompute(ctx, batchID)
	if err != nil {
		log.Warn().Err(err).Str("batch_id", batchID.String()).Msg("batch recompute failed")
		return
	}
	if b.Status != domain.BatchProcessing {
		log.Info().
			Str("batch_id", b.ID.String()).
			Str("status", string(b.Status)).
			Int("completed", b.CompletedCount).
			Int("failed", b.FailedCount).
			Msg("batch finished")
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.poll):
	}
}

// WorkerID derives a stable process identity for claim leases.
func WorkerID(hostname string, pid int) string {
	return fmt.Sprintf("%s-%d", hostname, pid)
}
