// Package timeline computes per-resource availability by combining a
// resource's operating-hours calendar with its committed flight-plan
// occupancy, following the busy-union-then-complement approach from the
// distilled specification's framing of calendars as an operating-hours
// busy complement.
//
// Grounded on router/vertiport.rs (pad timelines, chunking long windows) and
// router/vehicle.rs (aircraft timelines with post-leg location tracking)
// from the original implementation.
package timeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aetheric-oss/svc-scheduler/internal/calendarrule"
	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
)

// DefaultMaxSlotDuration caps how long a single availability slot may be
// before it is chunked, ported from the original's
// MAX_DURATION_TIMESLOT_MINUTES: a single short conflict deep inside a long
// window should not invalidate the whole window during pairing. Used when a
// Builder is constructed without an explicit chunk cap (max_pairing_window
// in configuration).
const DefaultMaxSlotDuration = 30 * time.Minute

// Builder computes pad and aircraft availability.
type Builder struct {
	store       *storage.Store
	minPadBlock time.Duration
	maxSlot     time.Duration
}

// NewBuilder constructs a timeline Builder. minPadBlock is the minimum
// pad-occupancy padding applied around each committed flight plan's
// scheduled time (min_pad_block in configuration). maxSlot is the chunk cap
// applied to long free windows (max_pairing_window in configuration); if
// zero, DefaultMaxSlotDuration is used.
func NewBuilder(store *storage.Store, minPadBlock, maxSlot time.Duration) *Builder {
	if maxSlot <= 0 {
		maxSlot = DefaultMaxSlotDuration
	}
	return &Builder{store: store, minPadBlock: minPadBlock, maxSlot: maxSlot}
}

// PadAvailability returns the free timeslots of pad padID within window.
func (b *Builder) PadAvailability(ctx context.Context, pad domain.Pad, window domain.Timeslot, now time.Time) (domain.Availability, error) {
	cal, err := calendarrule.Parse(pad.CalendarText)
	if err != nil {
		return domain.Availability{}, err
	}
	busy := cal.BusyIntervals(window.Start, window.End)

	plans, err := b.store.FlightPlans.SearchByPad(ctx, pad.ID, window)
	if err != nil {
		return domain.Availability{}, err
	}
	for _, fp := range plans {
		occ := domain.Timeslot{
			Start: fp.OriginTimeslotStart.Add(-b.minPadBlock),
			End:   fp.TargetTimeslotEnd.Add(b.minPadBlock),
		}
		busy = append(busy, occ)
	}

	merged := calendarrule.MergeOverlapping(busy)
	free := calendarrule.Complement(merged, window.Start, window.End)
	free = truncateBefore(free, now)
	free = chunk(free, b.maxSlot)

	return domain.Availability{ResourceID: pad.ID, Slots: free}, nil
}

// AircraftAvailability returns the free timeslots of an aircraft within
// window. Unlike a pad, an aircraft's location changes after each committed
// leg: the timeslot immediately following a plan is anchored to the plan's
// destination pad, so callers must consult LocationAt to know where the
// aircraft actually is at the start of any given slot.
type AircraftTimeline struct {
	Availability domain.Availability
	// legs is retained (sorted by departure) so callers can determine the
	// aircraft's location immediately before/after any instant.
	legs []domain.FlightPlan
}

// LocationAt returns the pad the aircraft occupies immediately before
// instant t, given its committed legs. If the aircraft has no leg ending
// before t, ok is false (caller must supply a base/home location).
func (a AircraftTimeline) LocationAt(t time.Time) (padID uuid.UUID, ok bool) {
	var best domain.FlightPlan
	found := false
	for _, leg := range a.legs {
		if !leg.TargetTimeslotEnd.After(t) {
			if !found || leg.TargetTimeslotEnd.After(best.TargetTimeslotEnd) {
				best = leg
				found = true
			}
		}
	}
	if !found {
		return uuid.Nil, false
	}
	return best.TargetPadID, true
}

// NextObligation returns the earliest committed leg departing at or after
// instant t, if any.
func (a AircraftTimeline) NextObligation(t time.Time) (domain.FlightPlan, bool) {
	var best domain.FlightPlan
	found := false
	for _, leg := range a.legs {
		if !leg.OriginTimeslotStart.Before(t) {
			if !found || leg.OriginTimeslotStart.Before(best.OriginTimeslotStart) {
				best = leg
				found = true
			}
		}
	}
	return best, found
}

func (b *Builder) AircraftAvailability(ctx context.Context, aircraft domain.Aircraft, window domain.Timeslot, now time.Time) (AircraftTimeline, error) {
	cal, err := calendarrule.Parse(aircraft.CalendarText)
	if err != nil {
		return AircraftTimeline{}, err
	}
	busy := cal.BusyIntervals(window.Start, window.End)

	plans, err := b.store.FlightPlans.SearchByAircraft(ctx, aircraft.ID, window)
	if err != nil {
		return AircraftTimeline{}, err
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].OriginTimeslotStart.Before(plans[j].OriginTimeslotStart)
	})
	for _, fp := range plans {
		busy = append(busy, domain.Timeslot{Start: fp.OriginTimeslotStart, End: fp.TargetTimeslotEnd})
	}

	merged := calendarrule.MergeOverlapping(busy)
	free := calendarrule.Complement(merged, window.Start, window.End)
	free = truncateBefore(free, now)
	free = chunk(free, b.maxSlot)

	// Deterministic gap ordering (a correctness fix over the original
	// implementation, which iterated store-return order): sort ascending
	// by start so "earliest feasible" selection downstream is guaranteed,
	// not incidental.
	sort.Slice(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })

	return AircraftTimeline{
		Availability: domain.Availability{ResourceID: aircraft.ID, Slots: free},
		legs:         plans,
	}, nil
}

func truncateBefore(slots []domain.Timeslot, now time.Time) []domain.Timeslot {
	var out []domain.Timeslot
	for _, s := range slots {
		if s.End.Before(now) || s.End.Equal(now) {
			continue
		}
		if s.Start.Before(now) {
			s.Start = now
		}
		out = append(out, s)
	}
	return out
}

func chunk(slots []domain.Timeslot, max time.Duration) []domain.Timeslot {
	var out []domain.Timeslot
	for _, s := range slots {
		if s.Duration() <= max {
			out = append(out, s)
			continue
		}
		start := s.Start
		for start.Before(s.End) {
			end := start.Add(max)
			if end.After(s.End) {
				end = s.End
			}
			out = append(out, domain.Timeslot{Start: start, End: end})
			start = end
		}
	}
	return out
}
