package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// PGFlightPlanRepository resolves and mutates flight plans in Postgres.
type PGFlightPlanRepository struct {
	pool *pgxpool.Pool
}

// NewPGFlightPlanRepository builds a PGFlightPlanRepository over an
// existing pool.
func NewPGFlightPlanRepository(pool *pgxpool.Pool) *PGFlightPlanRepository {
	return &PGFlightPlanRepository{pool: pool}
}

var _ FlightPlanRepository = (*PGFlightPlanRepository)(nil)

const flightPlanColumns = `id, session_id, aircraft_id, origin_pad_id, target_pad_id,
	origin_timeslot_start, target_timeslot_end, path, altitudes, status, is_deadhead`

func scanFlightPlan(row pgx.Row) (domain.FlightPlan, error) {
	var fp domain.FlightPlan
	var pathJSON, altJSON []byte
	if err := row.Scan(&fp.ID, &fp.SessionID, &fp.AircraftID, &fp.OriginPadID, &fp.TargetPadID,
		&fp.OriginTimeslotStart, &fp.TargetTimeslotEnd, &pathJSON, &altJSON, &fp.Status, &fp.IsDeadhead); err != nil {
		return domain.FlightPlan{}, err
	}
	if len(pathJSON) > 0 {
		if err := json.Unmarshal(pathJSON, &fp.Path); err != nil {
			return domain.FlightPlan{}, fmt.Errorf("decode path: %w", err)
		}
	}
	if len(altJSON) > 0 {
		if err := json.Unmarshal(altJSON, &fp.Altitudes); err != nil {
			return domain.FlightPlan{}, fmt.Errorf("decode altitudes: %w", err)
		}
	}
	return fp, nil
}

func (r *PGFlightPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FlightPlan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+flightPlanColumns+` FROM flight_plans WHERE id = $1 AND deleted_at IS NULL`, id)
	fp, err := scanFlightPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FlightPlan{}, ErrNotFound
		}
		return domain.FlightPlan{}, &ErrStorage{Op: "GetFlightPlan", Err: fmt.Errorf("id=%s: %w", id, err)}
	}
	return fp, nil
}

// nonTerminal excludes FINISHED and CANCELLED plans, mirroring
// get_sorted_flight_plans in the original implementation.
const nonTerminalFilter = `status NOT IN ('FINISHED', 'CANCELLED') AND deleted_at IS NULL`

func (r *PGFlightPlanRepository) SearchByAircraft(ctx context.Context, aircraftID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+flightPlanColumns+` FROM flight_plans
		 WHERE aircraft_id = $1 AND `+nonTerminalFilter+`
		   AND origin_timeslot_start < $3 AND target_timeslot_end > $2
		 ORDER BY origin_timeslot_start ASC`, aircraftID, window.Start, window.End)
	if err != nil {
		return nil, &ErrStorage{Op: "SearchByAircraft", Err: err}
	}
	defer rows.Close()
	return collectFlightPlans(rows)
}

func (r *PGFlightPlanRepository) SearchByPad(ctx context.Context, padID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+flightPlanColumns+` FROM flight_plans
		 WHERE (origin_pad_id = $1 OR target_pad_id = $1) AND `+nonTerminalFilter+`
		   AND origin_timeslot_start < $3 AND target_timeslot_end > $2
		 ORDER BY origin_timeslot_start ASC`, padID, window.Start, window.End)
	if err != nil {
		return nil, &ErrStorage{Op: "SearchByPad", Err: err}
	}
	defer rows.Close()
	return collectFlightPlans(rows)
}

func collectFlightPlans(rows pgx.Rows) ([]domain.FlightPlan, error) {
	var out []domain.FlightPlan
	for rows.Next() {
		fp, err := scanFlightPlan(rows)
		if err != nil {
			return nil, &ErrStorage{Op: "ScanFlightPlan", Err: err}
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

func (r *PGFlightPlanRepository) Insert(ctx context.Context, plan domain.FlightPlan) (uuid.UUID, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	pathJSON, err := json.Marshal(plan.Path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode path: %w", err)
	}
	altJSON, err := json.Marshal(plan.Altitudes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode altitudes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO flight_plans
		 (id, session_id, aircraft_id, origin_pad_id, target_pad_id,
		  origin_timeslot_start, target_timeslot_end, path, altitudes, status, is_deadhead)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		plan.ID, plan.SessionID, plan.AircraftID, plan.OriginPadID, plan.TargetPadID,
		plan.OriginTimeslotStart, plan.TargetTimeslotEnd, pathJSON, altJSON, plan.Status, plan.IsDeadhead)
	if err != nil {
		return uuid.Nil, &ErrStorage{Op: "InsertFlightPlan", Err: err}
	}
	return plan.ID, nil
}

func (r *PGFlightPlanRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FlightPlanStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE flight_plans SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return &ErrStorage{Op: "UpdateFlightPlanStatus", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
