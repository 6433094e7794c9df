package processor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
)

// dispatchCancelItinerary looks up the itinerary scoped to the requesting
// user and ACTIVE status (a request for someone else's itinerary, or for an
// already-terminal one, is treated identically to not-found), refuses
// cancellation once the first leg has departed, then cancels the itinerary
// and each of its flight plans best-effort. Grounded on cancel_itinerary in
// the original implementation.
func (p *Processor) dispatchCancelItinerary(ctx context.Context, task domain.Task) {
	itineraryID := task.CancelItineraryBody

	itinerary, err := p.store.Itineraries.GetActiveForUser(ctx, itineraryID, task.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.finish(ctx, task, domain.TaskRejected, domain.RationaleItineraryNotFound, "")
			return
		}
		p.log.Error("cancel_itinerary lookup failed", zap.Int64("task_id", task.ID), zap.Error(err))
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleInternal, "")
		return
	}

	if len(itinerary.FlightPlanIDs) == 0 {
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleItineraryNotFound, "")
		return
	}

	if p.firstLegDeparted(ctx, itinerary) {
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleScheduleConflict, "")
		return
	}

	if err := p.store.Itineraries.UpdateStatus(ctx, itineraryID, domain.ItineraryCancelled); err != nil {
		p.log.Error("failed to cancel itinerary", zap.Int64("task_id", task.ID), zap.Error(err))
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleInternal, "")
		return
	}

	for _, planID := range itinerary.FlightPlanIDs {
		if err := p.store.FlightPlans.UpdateStatus(ctx, planID, domain.FlightPlanCancelled); err != nil {
			// Best-effort: a single plan failing to cancel does not abort
			// the rest, matching the original's behavior.
			p.log.Warn("failed to cancel flight plan", zap.String("flight_plan_id", planID.String()), zap.Error(err))
		}
	}

	p.finish(ctx, task, domain.TaskComplete, domain.RationaleNone, "")
}

// firstLegDeparted refuses cancellation once the itinerary's first leg has
// already departed. This implementation's resolution of the open question
// on partially-completed itineraries: detecting "in flight" precisely would
// require live telemetry, a Non-goal, so a static departure-time check is
// the cheapest correct approximation (see DESIGN.md).
func (p *Processor) firstLegDeparted(ctx context.Context, itinerary domain.Itinerary) bool {
	if len(itinerary.FlightPlanIDs) == 0 {
		return false
	}
	firstPlan, err := p.store.FlightPlans.GetByID(ctx, itinerary.FlightPlanIDs[0])
	if err != nil {
		p.log.Warn("could not resolve first leg for cancellation check", zap.String("flight_plan_id", itinerary.FlightPlanIDs[0].String()), zap.Error(err))
		return false
	}
	return !firstPlan.OriginTimeslotStart.After(time.Now())
}
