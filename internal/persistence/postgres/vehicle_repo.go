package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
)

type vehicleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewVehicleRepo creates the PostgreSQL FIPE price bank repository.
func NewVehicleRepo(db *sqlx.DB, timeout time.Duration) persistence.VehicleRepo {
	return &vehicleRepo{db: db, timeout: timeout}
}

const vehicleColumns = `
	id, codigo_fipe, year_id, brand, model, year, fuel, price,
	reference_month, screenshot_id, last_api_call, updated_at`

func (r *vehicleRepo) FindSimilar(ctx context.Context, brand string, modelKeywords []string, year int, fuelFamily string) (*domain.VehiclePrice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conds := []string{"brand ILIKE $1", "year = $2"}
	args := []any{"%" + brand + "%", year}
	for _, kw := range modelKeywords {
		kw = strings.TrimSpace(kw)
		if len([]rune(kw)) < 2 {
			continue
		}
		args = append(args, "%"+kw+"%")
		conds = append(conds, fmt.Sprintf("model ILIKE $%d", len(args)))
	}
	if fuelFamily != "" {
		args = append(args, "%"+fuelFamily+"%")
		conds = append(conds, fmt.Sprintf("fuel ILIKE $%d", len(args)))
	}

	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicle_price_bank
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY updated_at DESC
		LIMIT 1`

	var v domain.VehiclePrice
	if err := r.db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query vehicle price bank: %w", err)
	}
	return &v, nil
}

func (r *vehicleRepo) Upsert(ctx context.Context, v *domain.VehiclePrice) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	// Uniqueness of (codigo_fipe, year_id) is DB-enforced; concurrent
	// writers converge on the freshest price.
	query := `
		INSERT INTO vehicle_price_bank (
			id, codigo_fipe, year_id, brand, model, year, fuel, price,
			reference_month, screenshot_id, last_api_call, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (codigo_fipe, year_id) DO UPDATE SET
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			fuel = EXCLUDED.fuel,
			price = EXCLUDED.price,
			reference_month = EXCLUDED.reference_month,
			screenshot_id = COALESCE(EXCLUDED.screenshot_id, vehicle_price_bank.screenshot_id),
			last_api_call = EXCLUDED.last_api_call,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.CodigoFipe, v.YearID, v.Brand, v.Model, v.Year, v.Fuel,
		v.Price, v.ReferenceMonth, v.ScreenshotID, v.LastAPICall)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle price: %w", err)
	}
	return nil
}
