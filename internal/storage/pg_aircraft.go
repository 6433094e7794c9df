package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// PGAircraftRepository resolves aircraft from Postgres.
type PGAircraftRepository struct {
	pool *pgxpool.Pool
}

// NewPGAircraftRepository builds a PGAircraftRepository over an existing pool.
func NewPGAircraftRepository(pool *pgxpool.Pool) *PGAircraftRepository {
	return &PGAircraftRepository{pool: pool}
}

var _ AircraftRepository = (*PGAircraftRepository)(nil)

func (r *PGAircraftRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Aircraft, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, registration, calendar_text, cruise_speed_kmh, range_km, max_persons, max_cargo_grams
		 FROM aircraft WHERE id = $1 AND deleted_at IS NULL`, id)

	var a domain.Aircraft
	if err := row.Scan(&a.ID, &a.Registration, &a.CalendarText, &a.CruiseSpeedKmh, &a.RangeKm, &a.MaxPersons, &a.MaxCargoGrams); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Aircraft{}, ErrNotFound
		}
		return domain.Aircraft{}, &ErrStorage{Op: "GetAircraft", Err: fmt.Errorf("id=%s: %w", id, err)}
	}
	return a, nil
}

func (r *PGAircraftRepository) ListSchedulable(ctx context.Context) ([]domain.Aircraft, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, registration, calendar_text, cruise_speed_kmh, range_km, max_persons, max_cargo_grams
		 FROM aircraft WHERE deleted_at IS NULL AND calendar_text IS NOT NULL AND calendar_text <> ''`)
	if err != nil {
		return nil, &ErrStorage{Op: "ListSchedulable", Err: err}
	}
	defer rows.Close()

	var out []domain.Aircraft
	for rows.Next() {
		var a domain.Aircraft
		if err := rows.Scan(&a.ID, &a.Registration, &a.CalendarText, &a.CruiseSpeedKmh, &a.RangeKm, &a.MaxPersons, &a.MaxCargoGrams); err != nil {
			return nil, &ErrStorage{Op: "ListSchedulable", Err: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGAircraftRepository) GetRegistration(ctx context.Context, id uuid.UUID) (string, error) {
	var reg string
	err := r.pool.QueryRow(ctx, `SELECT registration FROM aircraft WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&reg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", &ErrStorage{Op: "GetRegistration", Err: err}
	}
	return reg, nil
}
