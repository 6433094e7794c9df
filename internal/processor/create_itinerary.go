package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
)

// dispatchCreateItinerary re-validates the proposed legs against current
// schedules, then registers them as committed flight plans linked to a new
// itinerary. Grounded on create_itinerary/register_flight_plans in the
// original implementation.
func (p *Processor) dispatchCreateItinerary(ctx context.Context, task domain.Task) {
	legs := task.CreateItineraryBody
	if err := search.ValidateStructure(legs); err != nil {
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleScheduleConflict, "")
		return
	}

	if err := p.engine.Revalidate(ctx, legs, time.Now()); err != nil {
		p.log.Info("create_itinerary revalidation rejected", zap.Int64("task_id", task.ID), zap.Error(err))
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleScheduleConflict, "")
		return
	}

	itineraryID, err := p.registerFlightPlans(ctx, task.UserID, legs)
	if err != nil {
		p.log.Error("register_flight_plans failed", zap.Int64("task_id", task.ID), zap.Error(err))
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleInternal, "")
		return
	}

	p.finish(ctx, task, domain.TaskComplete, domain.RationaleNone, itineraryID.String())
}

// registerFlightPlans inserts each leg as a DRAFT flight plan, links them to
// a new itinerary, then commits every plan. On any failure it best-effort
// cancels the plans it already inserted (a compensating write, since this
// port's storage layer does not span a single cross-table transaction for
// the full sequence — see DESIGN.md).
func (p *Processor) registerFlightPlans(ctx context.Context, userID uuid.UUID, legs []domain.FlightPlanDraft) (uuid.UUID, error) {
	var insertedIDs []uuid.UUID
	var itineraryID uuid.UUID
	itineraryCreated := false

	rollback := func() {
		for _, id := range insertedIDs {
			if err := p.store.FlightPlans.UpdateStatus(ctx, id, domain.FlightPlanCancelled); err != nil {
				p.log.Warn("compensating cancel failed", zap.String("flight_plan_id", id.String()), zap.Error(err))
			}
		}
		if itineraryCreated {
			if err := p.store.Itineraries.UpdateStatus(ctx, itineraryID, domain.ItineraryCancelled); err != nil {
				p.log.Warn("compensating itinerary cancel failed", zap.String("itinerary_id", itineraryID.String()), zap.Error(err))
			}
		}
	}

	for _, leg := range legs {
		registration, err := p.store.Aircraft.GetRegistration(ctx, leg.AircraftID)
		if err != nil {
			rollback()
			return uuid.Nil, err
		}
		sessionID, err := newSessionID(registration)
		if err != nil {
			rollback()
			return uuid.Nil, err
		}
		id, err := p.store.FlightPlans.Insert(ctx, domain.FlightPlan{
			SessionID:           sessionID,
			AircraftID:          leg.AircraftID,
			OriginPadID:         leg.OriginPadID,
			TargetPadID:         leg.TargetPadID,
			OriginTimeslotStart: leg.OriginTimeslotStart,
			TargetTimeslotEnd:   leg.TargetTimeslotEnd,
			Path:                leg.Path,
			Altitudes:           leg.Altitudes,
			Status:              domain.FlightPlanStatusDraft,
			IsDeadhead:          leg.IsDeadhead,
		})
		if err != nil {
			rollback()
			return uuid.Nil, err
		}
		insertedIDs = append(insertedIDs, id)
	}

	var err error
	itineraryID, err = p.store.Itineraries.Insert(ctx, domain.Itinerary{
		UserID:    userID,
		Status:    domain.ItineraryActive,
		CreatedAt: time.Now(),
	})
	if err != nil {
		rollback()
		return uuid.Nil, err
	}
	itineraryCreated = true

	if err := p.store.Itineraries.LinkFlightPlans(ctx, itineraryID, insertedIDs); err != nil {
		rollback()
		return uuid.Nil, err
	}

	for _, id := range insertedIDs {
		if err := p.store.FlightPlans.UpdateStatus(ctx, id, domain.FlightPlanCommitted); err != nil {
			// A committed itinerary must not be left with un-COMMITTED
			// plans, so any commit failure here rolls back the whole
			// itinerary rather than returning a half-finished success.
			p.log.Error("failed to commit flight plan after linking", zap.String("flight_plan_id", id.String()), zap.Error(err))
			rollback()
			return uuid.Nil, err
		}
	}

	return itineraryID, nil
}
