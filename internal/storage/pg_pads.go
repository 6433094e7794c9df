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

// PGPadRepository resolves vertipads from Postgres.
type PGPadRepository struct {
	pool *pgxpool.Pool
}

// NewPGPadRepository builds a PGPadRepository over an existing pool.
func NewPGPadRepository(pool *pgxpool.Pool) *PGPadRepository {
	return &PGPadRepository{pool: pool}
}

var _ PadRepository = (*PGPadRepository)(nil)

func (r *PGPadRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Pad, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, vertiport_id, calendar_text, latitude, longitude
		 FROM pads WHERE id = $1 AND deleted_at IS NULL`, id)

	var p domain.Pad
	if err := row.Scan(&p.ID, &p.VertiportID, &p.CalendarText, &p.Latitude, &p.Longitude); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pad{}, ErrNotFound
		}
		return domain.Pad{}, &ErrStorage{Op: "GetPad", Err: fmt.Errorf("id=%s: %w", id, err)}
	}
	return p, nil
}
