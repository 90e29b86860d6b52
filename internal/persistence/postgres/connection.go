// Package postgres implements the persistence contracts on PostgreSQL
// via sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/licitaware/cotador/internal/persistence"
)

// Connect opens and pings the database with the pool settings applied.
func Connect(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("abrindo conexão: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verificando conexão: %w", err)
	}

	log.Info().Int("max_open", maxOpen).Msg("database connected")
	return db, nil
}

// NewRepository wires all repositories over one connection pool.
func NewRepository(db *sqlx.DB, timeout time.Duration) *persistence.Repository {
	return &persistence.Repository{
		Quotes:  NewQuotesRepo(db, timeout),
		Sources: NewSourcesRepo(db, timeout),
		Files:   NewFilesRepo(db, timeout),
		Config:  NewConfigRepo(db, timeout),
		Vehicle: NewVehicleRepo(db, timeout),
		Ledger:  NewLedgerRepo(db, timeout),
		Batch:   NewBatchRepo(db, timeout),
		Blocked: NewBlockedRepo(db, timeout),
	}
}
