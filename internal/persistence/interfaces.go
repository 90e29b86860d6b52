// Package persistence defines the repository contracts of the
// quotation engine. Implementations live in the postgres subpackage.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/licitaware/cotador/internal/domain"
)

// ErrNotFound is returned by every repository when a row does not
// exist.
var ErrNotFound = errors.New("registro não encontrado")

// ErrDuplicateSource is returned by SourcesRepo.Insert when the
// (quote_request_id, url) pair already exists. A resumed run treats it
// as work already persisted by a previous attempt, never as a failure.
var ErrDuplicateSource = errors.New("fonte duplicada para a cotação")

// QuotesRepo drives the QuoteRequest lifecycle: claim lease, heartbeat,
// checkpoints, progress and terminal transitions.
type QuotesRepo interface {
	// Get loads one request by id.
	Get(ctx context.Context, id uuid.UUID) (*domain.QuoteRequest, error)

	// Create persists a new request in PROCESSING.
	Create(ctx context.Context, q *domain.QuoteRequest) error

	// Claim attempts the single-writer lease: it sets worker_id,
	// started_at and last_heartbeat iff the request is PROCESSING and
	// unclaimed or its previous worker's heartbeat is older than
	// liveness. Returns false when another live worker holds it.
	Claim(ctx context.Context, id uuid.UUID, workerID string, liveness time.Duration) (bool, error)

	// Heartbeat refreshes the lease; fails when the lease is lost.
	Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error

	// NextClaimable returns the oldest PROCESSING request whose lease
	// is free or expired, or nil.
	NextClaimable(ctx context.Context, liveness time.Duration) (*domain.QuoteRequest, error)

	// CurrentStatus is the cheap status read used for cancellation
	// checks at every checkpoint and probe iteration.
	CurrentStatus(ctx context.Context, id uuid.UUID) (domain.Status, error)

	// SetProgress records a progress update; the stored percentage
	// never decreases.
	SetProgress(ctx context.Context, id uuid.UUID, step domain.ProgressStep, percent int, detail string) error

	// SetCheckpoint advances the checkpoint tag with its payload.
	SetCheckpoint(ctx context.Context, id uuid.UUID, tag domain.CheckpointTag, payload []byte) error

	// SaveAnalysis stores the durable LLM artifact.
	SaveAnalysis(ctx context.Context, id uuid.UUID, payload []byte) error

	// SaveShoppingResponse stores the durable aggregator artifact.
	SaveShoppingResponse(ctx context.Context, id uuid.UUID, payload []byte) error

	// SetAggregates writes the derived statistics.
	SetAggregates(ctx context.Context, id uuid.UUID, agg domain.Aggregates) error

	// Finish assigns the terminal status. It never overwrites
	// CANCELLED: when the stored status is already CANCELLED the call
	// is a no-op returning false.
	Finish(ctx context.Context, id uuid.UUID, status domain.Status, errorMessage *string) (bool, error)

	// HasChild reports whether a re-quote child already references id.
	HasChild(ctx context.Context, id uuid.UUID) (bool, error)

	// ListByBatch returns the child requests of a batch job.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.QuoteRequest, error)
}

// SourcesRepo persists accepted price observations and discarded
// candidates.
type SourcesRepo interface {
	Insert(ctx context.Context, s *domain.QuoteSource) error
	InsertFailure(ctx context.Context, f *domain.QuoteSourceFailure) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.QuoteSource, error)
	ListAccepted(ctx context.Context, requestID uuid.UUID) ([]domain.QuoteSource, error)

	// ReconcileAccepted flips is_accepted so that exactly the sources
	// with the given URLs are accepted; the late pass that reassembles
	// the final block.
	ReconcileAccepted(ctx context.Context, requestID uuid.UUID, urls []string) error
}

// FilesRepo records immutable blob descriptors.
type FilesRepo interface {
	Insert(ctx context.Context, f *domain.File) error
	Get(ctx context.Context, id uuid.UUID) (*domain.File, error)
}

// ConfigRepo resolves frozen parameter snapshots.
type ConfigRepo interface {
	GetVersion(ctx context.Context, id uuid.UUID) (*domain.ProjectConfigVersion, error)

	// LatestForProject returns the newest snapshot for the project
	// (nil projectID means the global defaults row).
	LatestForProject(ctx context.Context, projectID *uuid.UUID) (*domain.ProjectConfigVersion, error)

	CreateVersion(ctx context.Context, v *domain.ProjectConfigVersion) error
}

// VehicleRepo is the FIPE price bank, unique per (codigo_fipe, year_id).
type VehicleRepo interface {
	// FindSimilar runs the similarity lookup: brand ILIKE substring,
	// every model keyword (len >= 2) ILIKE, exact year, optional fuel
	// family. Most recently updated row wins.
	FindSimilar(ctx context.Context, brand string, modelKeywords []string, year int, fuelFamily string) (*domain.VehiclePrice, error)

	// Upsert inserts or refreshes the row for (codigo_fipe, year_id).
	Upsert(ctx context.Context, v *domain.VehiclePrice) error
}

// LedgerRepo appends audit and financial rows; both are immutable.
type LedgerRepo interface {
	InsertLog(ctx context.Context, l *domain.IntegrationLog) error
	InsertTransaction(ctx context.Context, t *domain.FinancialTransaction) error

	// CountLogs supports the idempotent-resume assertions: external
	// calls of a kind attributed to one request.
	CountLogs(ctx context.Context, requestID uuid.UUID, kind domain.IntegrationKind) (int64, error)

	// SumCosts totals the financial ledger for a request.
	SumCosts(ctx context.Context, requestID uuid.UUID) (decimal.Decimal, error)
}

// BatchRepo maintains batch jobs and their counters.
type BatchRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)
	Create(ctx context.Context, b *domain.BatchJob) error

	// Recompute atomically recounts terminal children and, when all
	// children are terminal, assigns the final batch status.
	Recompute(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)
}

// BlockedRepo loads the blocked-sources configuration.
type BlockedRepo interface {
	LoadAll(ctx context.Context) ([]domain.BlockedDomain, error)
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Quotes  QuotesRepo
	Sources SourcesRepo
	Files   FilesRepo
	Config  ConfigRepo
	Vehicle VehicleRepo
	Ledger  LedgerRepo
	Batch   BatchRepo
	Blocked BlockedRepo
}
