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

// PGItineraryRepository resolves and mutates itineraries in Postgres.
type PGItineraryRepository struct {
	pool *pgxpool.Pool
}

// NewPGItineraryRepository builds a PGItineraryRepository over an existing
// pool.
func NewPGItineraryRepository(pool *pgxpool.Pool) *PGItineraryRepository {
	return &PGItineraryRepository{pool: pool}
}

var _ ItineraryRepository = (*PGItineraryRepository)(nil)

func (r *PGItineraryRepository) Insert(ctx context.Context, it domain.Itinerary) (uuid.UUID, error) {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO itineraries (id, user_id, status, created_at) VALUES ($1,$2,$3,$4)`,
		it.ID, it.UserID, it.Status, it.CreatedAt)
	if err != nil {
		return uuid.Nil, &ErrStorage{Op: "InsertItinerary", Err: err}
	}
	return it.ID, nil
}

// LinkFlightPlans inserts the itinerary_flight_plans rows linking planIDs,
// in order, to itineraryID. Grounded on register_flight_plans in the
// original implementation, which links plans to an itinerary as a separate
// step after each plan is individually inserted.
func (r *PGItineraryRepository) LinkFlightPlans(ctx context.Context, itineraryID uuid.UUID, planIDs []uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &ErrStorage{Op: "LinkFlightPlans:begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for seq, planID := range planIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO itinerary_flight_plans (itinerary_id, flight_plan_id, sequence) VALUES ($1,$2,$3)`,
			itineraryID, planID, seq); err != nil {
			return &ErrStorage{Op: "LinkFlightPlans:insert", Err: fmt.Errorf("plan=%s: %w", planID, err)}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &ErrStorage{Op: "LinkFlightPlans:commit", Err: err}
	}
	return nil
}

func (r *PGItineraryRepository) Get(ctx context.Context, id uuid.UUID) (domain.Itinerary, error) {
	return r.getWhere(ctx, `id = $1 AND deleted_at IS NULL`, id)
}

func (r *PGItineraryRepository) GetActiveForUser(ctx context.Context, id, userID uuid.UUID) (domain.Itinerary, error) {
	return r.getWhere(ctx, `id = $1 AND user_id = $2 AND status = 'ACTIVE' AND deleted_at IS NULL`, id, userID)
}

func (r *PGItineraryRepository) getWhere(ctx context.Context, where string, args ...any) (domain.Itinerary, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, created_at FROM itineraries WHERE `+where, args...)

	var it domain.Itinerary
	if err := row.Scan(&it.ID, &it.UserID, &it.Status, &it.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Itinerary{}, ErrNotFound
		}
		return domain.Itinerary{}, &ErrStorage{Op: "GetItinerary", Err: err}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT flight_plan_id FROM itinerary_flight_plans WHERE itinerary_id = $1 ORDER BY sequence ASC`, it.ID)
	if err != nil {
		return domain.Itinerary{}, &ErrStorage{Op: "GetItinerary:plans", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return domain.Itinerary{}, &ErrStorage{Op: "GetItinerary:plans", Err: err}
		}
		it.FlightPlanIDs = append(it.FlightPlanIDs, pid)
	}
	return it, rows.Err()
}

func (r *PGItineraryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ItineraryStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE itineraries SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return &ErrStorage{Op: "UpdateItineraryStatus", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
