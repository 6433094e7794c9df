package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
)

type fakePads struct{}

func (fakePads) GetByID(_ context.Context, id uuid.UUID) (domain.Pad, error) {
	return domain.Pad{ID: id}, nil
}

type fakeAircraft struct{}

func (fakeAircraft) GetByID(_ context.Context, id uuid.UUID) (domain.Aircraft, error) {
	return domain.Aircraft{ID: id}, nil
}
func (fakeAircraft) ListSchedulable(context.Context) ([]domain.Aircraft, error) { return nil, nil }
func (fakeAircraft) GetRegistration(context.Context, uuid.UUID) (string, error) { return "N-TEST", nil }

type fakeFlightPlans struct{ plans []domain.FlightPlan }

func (f fakeFlightPlans) GetByID(_ context.Context, id uuid.UUID) (domain.FlightPlan, error) {
	return domain.FlightPlan{}, storage.ErrNotFound
}
func (f fakeFlightPlans) SearchByAircraft(_ context.Context, aircraftID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error) {
	var out []domain.FlightPlan
	for _, p := range f.plans {
		if p.AircraftID == aircraftID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f fakeFlightPlans) SearchByPad(_ context.Context, padID uuid.UUID, window domain.Timeslot) ([]domain.FlightPlan, error) {
	var out []domain.FlightPlan
	for _, p := range f.plans {
		if p.OriginPadID == padID || p.TargetPadID == padID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (fakeFlightPlans) Insert(context.Context, domain.FlightPlan) (uuid.UUID, error) { return uuid.Nil, nil }
func (fakeFlightPlans) UpdateStatus(context.Context, uuid.UUID, domain.FlightPlanStatus) error {
	return nil
}

type fakeItineraries struct{}

func (fakeItineraries) Insert(context.Context, domain.Itinerary) (uuid.UUID, error) { return uuid.Nil, nil }
func (fakeItineraries) LinkFlightPlans(context.Context, uuid.UUID, []uuid.UUID) error { return nil }
func (fakeItineraries) Get(context.Context, uuid.UUID) (domain.Itinerary, error) {
	return domain.Itinerary{}, storage.ErrNotFound
}
func (fakeItineraries) GetActiveForUser(context.Context, uuid.UUID, uuid.UUID) (domain.Itinerary, error) {
	return domain.Itinerary{}, storage.ErrNotFound
}
func (fakeItineraries) UpdateStatus(context.Context, uuid.UUID, domain.ItineraryStatus) error {
	return nil
}

func TestPadAvailabilityExcludesCommittedLegPlusBlock(t *testing.T) {
	padID, aircraftID := uuid.New(), uuid.New()
	base := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)

	store := &storage.Store{
		Pads:     fakePads{},
		Aircraft: fakeAircraft{},
		FlightPlans: fakeFlightPlans{plans: []domain.FlightPlan{
			{ID: uuid.New(), AircraftID: aircraftID, OriginPadID: padID, TargetPadID: padID,
				OriginTimeslotStart: base.Add(time.Hour), TargetTimeslotEnd: base.Add(90 * time.Minute)},
		}},
		Itineraries: fakeItineraries{},
	}

	b := NewBuilder(store, 5*time.Minute, 0)
	window := domain.Timeslot{Start: base, End: base.Add(3 * time.Hour)}
	avail, err := b.PadAvailability(context.Background(), domain.Pad{ID: padID}, window, base)
	require.NoError(t, err)

	for _, s := range avail.Slots {
		assert.False(t, s.Overlaps(domain.Timeslot{Start: base.Add(55 * time.Minute), End: base.Add(95 * time.Minute)}))
	}
}

func TestAircraftAvailabilityGapsSortedAscending(t *testing.T) {
	aircraftID, padA, padB := uuid.New(), uuid.New(), uuid.New()
	base := time.Date(2026, 1, 6, 6, 0, 0, 0, time.UTC)

	store := &storage.Store{
		Pads:     fakePads{},
		Aircraft: fakeAircraft{},
		FlightPlans: fakeFlightPlans{plans: []domain.FlightPlan{
			{ID: uuid.New(), AircraftID: aircraftID, OriginPadID: padA, TargetPadID: padB,
				OriginTimeslotStart: base.Add(4 * time.Hour), TargetTimeslotEnd: base.Add(5 * time.Hour)},
			{ID: uuid.New(), AircraftID: aircraftID, OriginPadID: padB, TargetPadID: padA,
				OriginTimeslotStart: base.Add(time.Hour), TargetTimeslotEnd: base.Add(2 * time.Hour)},
		}},
		Itineraries: fakeItineraries{},
	}

	b := NewBuilder(store, 0, 0)
	window := domain.Timeslot{Start: base, End: base.Add(8 * time.Hour)}
	tl, err := b.AircraftAvailability(context.Background(), domain.Aircraft{ID: aircraftID}, window, base)
	require.NoError(t, err)

	for i := 1; i < len(tl.Availability.Slots); i++ {
		assert.True(t, tl.Availability.Slots[i-1].Start.Before(tl.Availability.Slots[i].Start) ||
			tl.Availability.Slots[i-1].Start.Equal(tl.Availability.Slots[i].Start))
	}

	loc, ok := tl.LocationAt(base.Add(3 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, padA, loc)

	next, ok := tl.NextObligation(base.Add(3 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, base.Add(4*time.Hour), next.OriginTimeslotStart)
}

func TestChunkSplitsLongFreeWindow(t *testing.T) {
	base := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	slots := []domain.Timeslot{{Start: base, End: base.Add(2 * time.Hour)}}
	chunked := chunk(slots, DefaultMaxSlotDuration)
	require.Len(t, chunked, 4)
	for _, c := range chunked {
		assert.LessOrEqual(t, c.Duration(), DefaultMaxSlotDuration)
	}
}
