// Package storage adapts the durable record store ("Storage" in the
// external interfaces). It follows the teacher repository's convention of
// one exported interface per aggregate and one concrete Postgres
// implementation per interface, using raw SQL over pgx rather than an ORM.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrStorage wraps a retryable storage-layer failure.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *ErrStorage) Unwrap() error { return e.Err }

// PadRepository resolves vertipad records.
type PadRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Pad, error)
}

// AircraftRepository resolves aircraft records.
type AircraftRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Aircraft, error)
	// ListSchedulable returns every aircraft that carries an explicit
	// calendar; an aircraft record with no calendar is excluded from the
	// candidate pool rather than defaulted to always-available.
	ListSchedulable(ctx context.Context) ([]domain.Aircraft, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (string, error)
}

// FlightPlanRepository resolves and mutates flight plan records.
type FlightPlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.FlightPlan, error)
	SearchByAircraft(ctx context.Context, aircraftID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error)
	SearchByPad(ctx context.Context, padID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error)
	Insert(ctx context.Context, plan domain.FlightPlan) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FlightPlanStatus) error
}

// ItineraryRepository resolves and mutates itinerary records.
type ItineraryRepository interface {
	Insert(ctx context.Context, it domain.Itinerary) (uuid.UUID, error)
	LinkFlightPlans(ctx context.Context, itineraryID uuid.UUID, planIDs []uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (domain.Itinerary, error)
	// GetActiveForUser returns the itinerary only if it belongs to userID and
	// is still ACTIVE; otherwise ErrNotFound, matching the original
	// implementation's ownership+status-scoped cancellation lookup.
	GetActiveForUser(ctx context.Context, id, userID uuid.UUID) (domain.Itinerary, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ItineraryStatus) error
}

// Store bundles every repository the scheduler needs; it is the dependency
// the search engine and task processor are constructed with.
type Store struct {
	Pads        PadRepository
	Aircraft    AircraftRepository
	FlightPlans FlightPlanRepository
	Itineraries ItineraryRepository
}
