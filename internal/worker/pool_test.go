package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type queueQuotes struct {
	persistence.QuotesRepo

	mu    sync.Mutex
	queue []*domain.QuoteRequest
}

func (f *queueQuotes) NextClaimable(context.Context, time.Duration) (*domain.QuoteRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	q := f.queue[0]
	f.queue = f.queue[1:]
	return q, nil
}

type countingBatch struct {
	persistence.BatchRepo

	mu         sync.Mutex
	recomputed []uuid.UUID
}

func (f *countingBatch) Recompute(_ context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputed = append(f.recomputed, id)
	return &domain.BatchJob{ID: id, Status: domain.BatchCompleted, TotalCount: 1, CompletedCount: 1}, nil
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	done      chan struct{}
	want      int
}

func (f *recordingProcessor) Process(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	if len(f.processed) == f.want {
		close(f.done)
	}
	return nil
}

func TestPoolProcessesQueueAndRecomputesBatches(t *testing.T) {
	batchID := uuid.New()
	quotes := &queueQuotes{queue: []*domain.QuoteRequest{
		{ID: uuid.New()},
		{ID: uuid.New(), BatchJobID: &batchID},
		{ID: uuid.New(), BatchJobID: &batchID},
	}}
	batch := &countingBatch{}
	proc := &recordingProcessor{done: make(chan struct{}), want: 3}

	pool := New(
		&persistence.Repository{Quotes: quotes, Batch: batch},
		proc,
		config.WorkerConfig{PoolSize: 2, PollInterval: 5 * time.Millisecond, Liveness: time.Minute, WallBudget: time.Second},
		zerolog.Nop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(finished)
	}()

	select {
	case <-proc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue not drained in time")
	}
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain after cancel")
	}

	assert.Len(t, proc.processed, 3)
	require.Len(t, batch.recomputed, 2, "every terminal batch child triggers a recompute")
	assert.Equal(t, batchID, batch.recomputed[0])
}

func TestWorkerID(t *testing.T) {
	assert.Equal(t, "host-a-42", WorkerID("host-a", 42))
}
