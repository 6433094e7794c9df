// Package search implements the itinerary search engine (C5): given an
// origin pad, a destination pad, and a time window, it enumerates feasible
// (timeslot, aircraft, deadhead) combinations and ranks the results.
//
// Grounded on router/itinerary.rs (pre/post-deadhead construction,
// validate_itinerary) and router/vertiport.rs (get_vertipad_timeslot_pairs'
// sorted short-circuit iteration) from the original implementation.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aetheric-oss/svc-scheduler/internal/calendarrule"
	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/routing"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
	"github.com/aetheric-oss/svc-scheduler/internal/timeline"
)

// ErrNoRouteAtAll is returned when the routing service could not compute a
// duration for any origin/destination pairing.
var ErrNoRouteAtAll = errors.New("search: no route available between requested pads")

// ErrInvalidItinerary is returned when a proposed itinerary fails the
// structural checks, or when commit-time re-validation finds it no longer
// feasible.
var ErrInvalidItinerary = errors.New("search: itinerary is not feasible")

// Request describes a feasibility query.
type Request struct {
	OriginPadID       uuid.UUID
	DestinationPadID  uuid.UUID
	EarliestDeparture time.Time
	LatestArrival     time.Time
	IsCargo           bool
	Persons           int
	WeightGrams       int
}

// Result is one feasible itinerary: 1-3 flight plan drafts (an optional
// pre-deadhead, the main leg, and an optional post-deadhead).
type Result struct {
	AircraftID    uuid.UUID
	Legs          []domain.FlightPlanDraft
	DeadheadTotal time.Duration
	Departure     time.Time
}

// Config bounds the search: MaxDeadhead caps how far outside the requested
// window a repositioning flight may extend. RevalidationSlack is the
// tolerance applied when Revalidate compares a proposed itinerary's
// departure time against the timeline's current feasible departure for the
// same aircraft, since a re-run of the same search rarely produces the
// bit-identical instant.
type Config struct {
	MaxDeadhead       time.Duration
	RevalidationSlack time.Duration
}

// Engine runs itinerary searches.
type Engine struct {
	store    *storage.Store
	timeline *timeline.Builder
	router   routing.Client
	cfg      Config
}

// NewEngine constructs a search Engine.
func NewEngine(store *storage.Store, tb *timeline.Builder, router routing.Client, cfg Config) *Engine {
	return &Engine{store: store, timeline: tb, router: router, cfg: cfg}
}

// Query runs a read-only feasibility search; it never mutates storage.
func (e *Engine) Query(ctx context.Context, req Request, now time.Time) ([]Result, error) {
	origin, err := e.store.Pads.GetByID(ctx, req.OriginPadID)
	if err != nil {
		return nil, fmt.Errorf("origin pad: %w", err)
	}
	dest, err := e.store.Pads.GetByID(ctx, req.DestinationPadID)
	if err != nil {
		return nil, fmt.Errorf("destination pad: %w", err)
	}

	window := domain.Timeslot{Start: req.EarliestDeparture, End: req.LatestArrival}
	originAvail, err := e.timeline.PadAvailability(ctx, origin, window, now)
	if err != nil {
		return nil, fmt.Errorf("origin availability: %w", err)
	}
	destAvail, err := e.timeline.PadAvailability(ctx, dest, window, now)
	if err != nil {
		return nil, fmt.Errorf("destination availability: %w", err)
	}

	// Either pad having no free timeslots at all (fully booked, under
	// maintenance, etc.) is zero itineraries, not an error — distinct from
	// every probe against non-empty slots failing, handled below via
	// anyRouteFound.
	if len(originAvail.Slots) == 0 || len(destAvail.Slots) == 0 {
		return nil, nil
	}

	legs, anyRouteFound, err := e.pairTimeslots(ctx, origin, dest, originAvail.Slots, destAvail.Slots, req)
	if err != nil {
		return nil, err
	}
	if !anyRouteFound {
		return nil, ErrNoRouteAtAll
	}
	if len(legs) == 0 {
		return nil, nil
	}

	aircraftList, err := e.store.Aircraft.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}

	extWindow := domain.Timeslot{
		Start: req.EarliestDeparture.Add(-e.cfg.MaxDeadhead),
		End:   req.LatestArrival.Add(e.cfg.MaxDeadhead),
	}

	best := map[uuid.UUID]Result{}
	for _, aircraft := range aircraftList {
		if !fitsCapacity(aircraft, req) {
			continue
		}
		tl, err := e.timeline.AircraftAvailability(ctx, aircraft, extWindow, now)
		if err != nil {
			return nil, fmt.Errorf("aircraft %s availability: %w", aircraft.ID, err)
		}
		for _, leg := range legs {
			result, ok, err := e.assembleItinerary(ctx, aircraft, tl, origin, dest, leg)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			// keep ≤1 result per aircraft: earliest-departing survivor,
			// per the explicit cap this port enforces over the original.
			cur, exists := best[aircraft.ID]
			if !exists || result.Departure.Before(cur.Departure) {
				best[aircraft.ID] = result
			}
		}
	}

	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Departure.Equal(out[j].Departure) {
			return out[i].Departure.Before(out[j].Departure)
		}
		if out[i].DeadheadTotal != out[j].DeadheadTotal {
			return out[i].DeadheadTotal < out[j].DeadheadTotal
		}
		return out[i].AircraftID.String() < out[j].AircraftID.String()
	})
	return out, nil
}

type candidateLeg struct {
	depart   time.Time
	arrive   time.Time
	duration time.Duration
	path     []domain.GeoPoint
	altitude []float64
}

// pairTimeslots implements the sorted short-circuit iteration ported from
// get_vertipad_timeslot_pairs: origin and destination slots are both sorted
// by start, and once an origin slot's routing probe fails outright the
// remaining destination slots are abandoned for that origin slot (but later
// origin slots are still tried).
//
// For each (origin slot, destination slot) pair the actual usable departure
// window is max(so.Start, sd.Start-d)..min(so.End, sd.End-d) — the flight's
// duration d is not required to fit inside either slot on its own, only the
// intersection of "departs while origin is free" and "arrives while
// destination is free" needs to be non-empty. This mirrors the original's
// origin_timeslot/target_timeslot construction and is what makes chunking
// availability into fixed-size chunks safe: a leg is free to span
// multiple contiguous chunks, chunking only isolates a no-fly zone from
// invalidating an entire long window.
func (e *Engine) pairTimeslots(ctx context.Context, origin, dest domain.Pad, originSlots, destSlots []domain.Timeslot, req Request) ([]candidateLeg, bool, error) {
	sort.Slice(originSlots, func(i, j int) bool { return originSlots[i].Start.Before(originSlots[j].Start) })
	sort.Slice(destSlots, func(i, j int) bool { return destSlots[i].Start.Before(destSlots[j].Start) })

	var out []candidateLeg
	anyRoute := false
	sawGISUnavailable := false

	for _, so := range originSlots {
		probe := maxTime(so.Start, req.EarliestDeparture)
		path, err := e.router.BestPath(ctx, origin, dest, probe)
		if err != nil {
			if errors.Is(err, routing.ErrRouteUnavailable) {
				continue
			}
			if errors.Is(err, routing.ErrGISUnavailable) {
				sawGISUnavailable = true
				continue
			}
			return nil, anyRoute, err
		}
		anyRoute = true
		d := path.Duration

		for _, sd := range destSlots {
			if !so.Start.Before(sd.End) {
				continue // destination slot already closed by the time origin opens
			}
			if !so.End.Add(d).After(sd.Start) {
				// Even departing at the very end of so, we'd arrive before sd
				// opens; later destination slots start even later, so no
				// further sd can work for this so either.
				break
			}
			departWindowStart := maxTime(so.Start, sd.Start.Add(-d))
			departWindowEnd := minTime(so.End, sd.End.Add(-d))
			if !departWindowStart.Before(departWindowEnd) {
				continue
			}
			depart := departWindowStart
			arrive := depart.Add(d)
			out = append(out, candidateLeg{
				depart:   depart,
				arrive:   arrive,
				duration: d,
				path:     path.Waypoints,
				altitude: path.Altitudes,
			})
		}
	}
	if !anyRoute && sawGISUnavailable {
		return out, anyRoute, routing.ErrGISUnavailable
	}
	return out, anyRoute, nil
}

// assembleItinerary attempts to build pre-deadhead + main leg + post-deadhead
// for one aircraft against one candidate main leg.
func (e *Engine) assembleItinerary(ctx context.Context, aircraft domain.Aircraft, tl timeline.AircraftTimeline, origin, dest domain.Pad, leg candidateLeg) (Result, bool, error) {
	var legs []domain.FlightPlanDraft
	var deadheadTotal time.Duration
	earliestStart := leg.depart

	if prevPadID, hasPrev := tl.LocationAt(leg.depart); hasPrev && prevPadID != origin.ID {
		prevPad, err := e.store.Pads.GetByID(ctx, prevPadID)
		if err != nil {
			return Result{}, false, fmt.Errorf("pre-deadhead origin pad: %w", err)
		}
		path, err := e.router.BestPath(ctx, prevPad, origin, leg.depart.Add(-e.cfg.MaxDeadhead))
		if err != nil {
			if errors.Is(err, routing.ErrRouteUnavailable) || errors.Is(err, routing.ErrGISUnavailable) {
				return Result{}, false, nil
			}
			return Result{}, false, err
		}
		if path.Duration > e.cfg.MaxDeadhead {
			return Result{}, false, nil
		}
		// Depart as late as possible so the aircraft idles at its prior
		// location as long as feasible, while still landing by leg.depart.
		deadheadArrive := leg.depart
		deadheadDepart := deadheadArrive.Add(-path.Duration)
		if !e.aircraftFree(tl, deadheadDepart, deadheadArrive) {
			return Result{}, false, nil
		}
		legs = append(legs, domain.FlightPlanDraft{
			AircraftID:          aircraft.ID,
			OriginPadID:         prevPadID,
			TargetPadID:         origin.ID,
			OriginTimeslotStart: deadheadDepart,
			TargetTimeslotEnd:   deadheadArrive,
			Path:                path.Waypoints,
			Altitudes:           path.Altitudes,
			IsDeadhead:          true,
		})
		deadheadTotal += path.Duration
		earliestStart = deadheadDepart
	}

	if !e.aircraftFree(tl, leg.depart, leg.arrive) {
		return Result{}, false, nil
	}
	legs = append(legs, domain.FlightPlanDraft{
		AircraftID:          aircraft.ID,
		OriginPadID:         origin.ID,
		TargetPadID:         dest.ID,
		OriginTimeslotStart: leg.depart,
		TargetTimeslotEnd:   leg.arrive,
		Path:                leg.path,
		Altitudes:           leg.altitude,
	})

	if next, ok := tl.NextObligation(leg.arrive); ok && next.OriginPadID != dest.ID {
		nextPad, err := e.store.Pads.GetByID(ctx, next.OriginPadID)
		if err != nil {
			return Result{}, false, fmt.Errorf("post-deadhead destination pad: %w", err)
		}
		path, err := e.router.BestPath(ctx, dest, nextPad, leg.arrive)
		if err != nil {
			if errors.Is(err, routing.ErrRouteUnavailable) || errors.Is(err, routing.ErrGISUnavailable) {
				return Result{}, false, nil
			}
			return Result{}, false, err
		}
		postArrive := leg.arrive.Add(path.Duration)
		if postArrive.After(next.OriginTimeslotStart) || path.Duration > e.cfg.MaxDeadhead {
			return Result{}, false, nil
		}
		if !e.aircraftFree(tl, leg.arrive, postArrive) {
			return Result{}, false, nil
		}
		legs = append(legs, domain.FlightPlanDraft{
			AircraftID:          aircraft.ID,
			OriginPadID:         dest.ID,
			TargetPadID:         next.OriginPadID,
			OriginTimeslotStart: leg.arrive,
			TargetTimeslotEnd:   postArrive,
			Path:                path.Waypoints,
			Altitudes:           path.Altitudes,
			IsDeadhead:          true,
		})
		deadheadTotal += path.Duration
	}

	return Result{
		AircraftID:    aircraft.ID,
		Legs:          legs,
		DeadheadTotal: deadheadTotal,
		Departure:     earliestStart,
	}, true, nil
}

// aircraftFree reports whether [start,end) is covered by the aircraft's free
// availability. Availability is chunked into fixed-size pieces so a
// no-fly zone deep inside a long window doesn't invalidate the whole window;
// contiguous chunks (touching at their boundary) are merged back together
// here so a leg spanning more than one chunk is not treated as infeasible.
func (e *Engine) aircraftFree(tl timeline.AircraftTimeline, start, end time.Time) bool {
	merged := calendarrule.MergeOverlapping(tl.Availability.Slots)
	for _, s := range merged {
		if !s.Start.After(start) && !s.End.Before(end) {
			return true
		}
	}
	return false
}

func fitsCapacity(a domain.Aircraft, req Request) bool {
	if req.IsCargo {
		return req.WeightGrams <= a.MaxCargoGrams
	}
	return req.Persons <= a.MaxPersons
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func withinSlack(a, b time.Time, slack time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= slack
}

// ValidateStructure runs the cheap structural checks that must pass before
// the expensive commit-time re-validation runs: continuity between legs,
// single aircraft, positive leg durations, and no leg departing before the
// previous leg arrives (touching legs are accepted). Ported from
// validate_itinerary in the original implementation.
func ValidateStructure(legs []domain.FlightPlanDraft) error {
	if len(legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidItinerary)
	}
	aircraftID := legs[0].AircraftID
	for i, l := range legs {
		if l.AircraftID != aircraftID {
			return fmt.Errorf("%w: leg %d uses a different aircraft", ErrInvalidItinerary, i)
		}
		if !l.OriginTimeslotStart.Before(l.TargetTimeslotEnd) {
			return fmt.Errorf("%w: leg %d has non-positive duration", ErrInvalidItinerary, i)
		}
		if i > 0 {
			prev := legs[i-1]
			if l.OriginTimeslotStart.Before(prev.TargetTimeslotEnd) {
				return fmt.Errorf("%w: leg %d departs before leg %d arrives", ErrInvalidItinerary, i, i-1)
			}
			if prev.TargetPadID != l.OriginPadID {
				return fmt.Errorf("%w: leg %d does not continue from leg %d's destination", ErrInvalidItinerary, i, i-1)
			}
		}
	}
	return nil
}

// Revalidate re-runs the feasibility check for a proposed itinerary at
// commit time: it re-derives the (origin, destination, window) implied by
// the non-deadhead legs and checks that a pairing covering the exact same
// aircraft, origin pad, and destination pad still exists with a departure
// time overlapping-or-equal to the one proposed, within Config's configured
// slack.
func (e *Engine) Revalidate(ctx context.Context, legs []domain.FlightPlanDraft, now time.Time) error {
	if err := ValidateStructure(legs); err != nil {
		return err
	}
	main := mainLeg(legs)

	// The re-query window is padded by the revalidation slack on both ends:
	// rebuilding it as exactly [depart, arrive] would leave pairTimeslots no
	// room at all (a window the same length as the flight duration can never
	// satisfy departWindowStart < departWindowEnd), so the original pairing
	// could never be rediscovered even with nothing changed.
	slack := e.cfg.RevalidationSlack
	if slack <= 0 {
		slack = time.Minute
	}
	req := Request{
		OriginPadID:       main.OriginPadID,
		DestinationPadID:  main.TargetPadID,
		EarliestDeparture: main.OriginTimeslotStart.Add(-slack),
		LatestArrival:     main.TargetTimeslotEnd.Add(slack),
	}
	results, err := e.Query(ctx, req, now)
	if err != nil {
		return err
	}
	surviving := false
	for _, r := range results {
		if r.AircraftID != main.AircraftID {
			continue
		}
		if withinSlack(mainLeg(r.Legs).OriginTimeslotStart, main.OriginTimeslotStart, slack) {
			surviving = true
			break
		}
	}
	if !surviving {
		return fmt.Errorf("%w: no surviving pairing for aircraft %s", ErrInvalidItinerary, main.AircraftID)
	}

	for _, l := range legs {
		if len(l.Path) == 0 {
			continue
		}
		window := domain.Timeslot{Start: l.OriginTimeslotStart, End: l.TargetTimeslotEnd}
		hit, err := e.router.CheckIntersection(ctx, l.Path, window)
		if err != nil {
			return fmt.Errorf("commit-time intersection check: %w", err)
		}
		if hit {
			return fmt.Errorf("%w: leg crosses an active no-fly zone", ErrInvalidItinerary)
		}
	}
	return nil
}

func mainLeg(legs []domain.FlightPlanDraft) domain.FlightPlanDraft {
	for _, l := range legs {
		if !l.IsDeadhead {
			return l
		}
	}
	return legs[0]
}
