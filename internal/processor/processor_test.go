package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/queue"
	"github.com/aetheric-oss/svc-scheduler/internal/routing"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
	"github.com/aetheric-oss/svc-scheduler/internal/taskstore"
	"github.com/aetheric-oss/svc-scheduler/internal/timeline"
)

// fakeQueues and fakeTasks stand in for the Redis-backed queue.Queues and
// taskstore.Store so the C8 dispatch logic can run without a live Redis.

type fakeQueues struct {
	mu      sync.Mutex
	popped  []queue.Popped
	removed []int64
}

func (q *fakeQueues) Add(context.Context, domain.Priority, int64, time.Time) error { return nil }
func (q *fakeQueues) Remove(_ context.Context, _ domain.Priority, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	return nil
}
func (q *fakeQueues) PopMinBlocking(context.Context, time.Duration) (queue.Popped, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.popped) == 0 {
		return queue.Popped{}, false, nil
	}
	next := q.popped[0]
	q.popped = q.popped[1:]
	return next, true, nil
}

type fakeTasks struct {
	mu      sync.Mutex
	byID    map[int64]domain.Task
	nextID  int64
}

func newFakeTasks() *fakeTasks { return &fakeTasks{byID: map[int64]domain.Task{}} }

func (t *fakeTasks) NextID(context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID, nil
}
func (t *fakeTasks) Put(_ context.Context, task domain.Task, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[task.ID] = task
	return nil
}
func (t *fakeTasks) Get(_ context.Context, id int64) (domain.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.byID[id]
	if !ok {
		return domain.Task{}, taskstore.ErrNotFound
	}
	return task, nil
}
func (t *fakeTasks) UpdateStatus(_ context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.byID[id]
	if !ok {
		return taskstore.ErrNotFound
	}
	task.Status = status
	task.Rationale = rationale
	if result != "" {
		task.Result = result
	}
	t.byID[id] = task
	return nil
}

type fakePads struct{}

func (fakePads) GetByID(_ context.Context, id uuid.UUID) (domain.Pad, error) {
	return domain.Pad{ID: id}, nil
}

type fakeAircraft struct{ list []domain.Aircraft }

func (f fakeAircraft) GetByID(_ context.Context, id uuid.UUID) (domain.Aircraft, error) {
	for _, a := range f.list {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Aircraft{ID: id}, nil
}
func (f fakeAircraft) ListSchedulable(context.Context) ([]domain.Aircraft, error) { return f.list, nil }
func (fakeAircraft) GetRegistration(context.Context, uuid.UUID) (string, error)   { return "N-TEST", nil }

type fakeFlightPlans struct {
	mu    sync.Mutex
	plans map[uuid.UUID]domain.FlightPlan
}

func newFakeFlightPlans() *fakeFlightPlans {
	return &fakeFlightPlans{plans: map[uuid.UUID]domain.FlightPlan{}}
}
func (f *fakeFlightPlans) GetByID(_ context.Context, id uuid.UUID) (domain.FlightPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return domain.FlightPlan{}, storage.ErrNotFound
	}
	return p, nil
}
func (f *fakeFlightPlans) SearchByAircraft(context.Context, uuid.UUID, domain.Timeslot) ([]domain.FlightPlan, error) {
	return nil, nil
}
func (f *fakeFlightPlans) SearchByPad(context.Context, uuid.UUID, domain.Timeslot) ([]domain.FlightPlan, error) {
	return nil, nil
}
func (f *fakeFlightPlans) Insert(_ context.Context, plan domain.FlightPlan) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	f.plans[plan.ID] = plan
	return plan.ID, nil
}
func (f *fakeFlightPlans) UpdateStatus(_ context.Context, id uuid.UUID, status domain.FlightPlanStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Status = status
	f.plans[id] = p
	return nil
}

type fakeItineraries struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Itinerary
}

func newFakeItineraries() *fakeItineraries {
	return &fakeItineraries{byID: map[uuid.UUID]domain.Itinerary{}}
}
func (f *fakeItineraries) Insert(_ context.Context, it domain.Itinerary) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it.ID = uuid.New()
	f.byID[it.ID] = it
	return it.ID, nil
}
func (f *fakeItineraries) LinkFlightPlans(_ context.Context, id uuid.UUID, planIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	it.FlightPlanIDs = planIDs
	f.byID[id] = it
	return nil
}
func (f *fakeItineraries) Get(_ context.Context, id uuid.UUID) (domain.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.byID[id]
	if !ok {
		return domain.Itinerary{}, storage.ErrNotFound
	}
	return it, nil
}
func (f *fakeItineraries) GetActiveForUser(_ context.Context, id, userID uuid.UUID) (domain.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.byID[id]
	if !ok || it.UserID != userID || it.Status != domain.ItineraryActive {
		return domain.Itinerary{}, storage.ErrNotFound
	}
	return it, nil
}
func (f *fakeItineraries) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ItineraryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	it.Status = status
	f.byID[id] = it
	return nil
}

type fakeRouter struct{ duration time.Duration }

func (r fakeRouter) BestPath(context.Context, domain.Pad, domain.Pad, time.Time) (routing.Path, error) {
	return routing.Path{Duration: r.duration}, nil
}
func (r fakeRouter) CheckIntersection(context.Context, []domain.GeoPoint, domain.Timeslot) (bool, error) {
	return false, nil
}

func newTestProcessor(t *testing.T) (*Processor, *fakeQueues, *fakeTasks, *fakeFlightPlans, *fakeItineraries) {
	t.Helper()
	store := &storage.Store{
		Pads:        fakePads{},
		Aircraft:    fakeAircraft{},
		FlightPlans: newFakeFlightPlans(),
		Itineraries: newFakeItineraries(),
	}
	tb := timeline.NewBuilder(store, 0, 0)
	engine := search.NewEngine(store, tb, fakeRouter{duration: time.Minute}, search.Config{MaxDeadhead: time.Hour})

	q := &fakeQueues{}
	tasks := newFakeTasks()

	p := &Processor{
		queues:     q,
		tasks:      tasks,
		engine:     engine,
		store:      store,
		log:        zap.NewNop(),
		popTimeout: time.Millisecond,
	}
	return p, q, tasks, store.FlightPlans.(*fakeFlightPlans), store.Itineraries.(*fakeItineraries)
}

// newTestProcessorWithAircraft builds a Processor identically to
// newTestProcessor but against a caller-supplied fleet, needed by any test
// that exercises the search engine's aircraft-matching path (CREATE_ITINERARY
// dispatch always re-queries ListSchedulable during revalidation).
func newTestProcessorWithAircraft(t *testing.T, aircraft []domain.Aircraft, plans storage.FlightPlanRepository) (*Processor, *fakeTasks, storage.FlightPlanRepository, *fakeItineraries) {
	t.Helper()
	itineraries := newFakeItineraries()
	store := &storage.Store{
		Pads:        fakePads{},
		Aircraft:    fakeAircraft{list: aircraft},
		FlightPlans: plans,
		Itineraries: itineraries,
	}
	tb := timeline.NewBuilder(store, 0, 0)
	engine := search.NewEngine(store, tb, fakeRouter{duration: time.Minute}, search.Config{MaxDeadhead: time.Hour})

	tasks := newFakeTasks()
	p := &Processor{
		queues:     &fakeQueues{},
		tasks:      tasks,
		engine:     engine,
		store:      store,
		log:        zap.NewNop(),
		popTimeout: time.Millisecond,
	}
	return p, tasks, plans, itineraries
}

func TestDispatchCreateItineraryHappyPath(t *testing.T) {
	aircraftID, originID, destID, userID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	depart := time.Now().Add(time.Hour)
	arrive := depart.Add(time.Minute)

	p, tasks, _, itineraries := newTestProcessorWithAircraft(t,
		[]domain.Aircraft{{ID: aircraftID, MaxPersons: 4}}, newFakeFlightPlans())

	leg := domain.FlightPlanDraft{
		AircraftID:          aircraftID,
		OriginPadID:         originID,
		TargetPadID:         destID,
		OriginTimeslotStart: depart,
		TargetTimeslotEnd:   arrive,
	}
	task := domain.Task{
		ID:                  20,
		Action:              domain.ActionCreateItinerary,
		Priority:            domain.PriorityHigh,
		UserID:              userID,
		Expiry:              depart.Add(time.Hour),
		CreateItineraryBody: []domain.FlightPlanDraft{leg},
	}
	ctx := context.Background()
	require.NoError(t, tasks.Put(ctx, task, time.Hour))

	p.dispatchCreateItinerary(ctx, task)

	got, err := tasks.Get(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, domain.TaskComplete, got.Status)
	require.Equal(t, domain.RationaleNone, got.Rationale)

	itineraryID, err := uuid.Parse(got.Result)
	require.NoError(t, err)

	it, err := itineraries.Get(ctx, itineraryID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItineraryActive, it.Status)
	require.Len(t, it.FlightPlanIDs, 1)

	plan, err := p.store.FlightPlans.GetByID(ctx, it.FlightPlanIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.FlightPlanCommitted, plan.Status)
}

// flakyFlightPlans wraps fakeFlightPlans to force a failure on the Nth call
// to UpdateStatus(..., FlightPlanCommitted, ...), so registerFlightPlans's
// compensating rollback can be exercised deterministically.
type flakyFlightPlans struct {
	*fakeFlightPlans
	mu            sync.Mutex
	commitCalls   int
	failOnCommitN int
}

func (f *flakyFlightPlans) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FlightPlanStatus) error {
	if status == domain.FlightPlanCommitted {
		f.mu.Lock()
		f.commitCalls++
		n := f.commitCalls
		f.mu.Unlock()
		if n == f.failOnCommitN {
			return errors.New("forced commit failure")
		}
	}
	return f.fakeFlightPlans.UpdateStatus(ctx, id, status)
}

func TestRegisterFlightPlansRollsBackOnPartialCommitFailure(t *testing.T) {
	aircraftID, p1, pMid, p2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	userID := uuid.New()
	base := time.Now().Add(time.Hour)

	plans := &flakyFlightPlans{fakeFlightPlans: newFakeFlightPlans(), failOnCommitN: 2}
	p, _, _, itineraries := newTestProcessorWithAircraft(t,
		[]domain.Aircraft{{ID: aircraftID, MaxPersons: 4}}, plans)

	legs := []domain.FlightPlanDraft{
		{AircraftID: aircraftID, OriginPadID: p1, TargetPadID: pMid,
			OriginTimeslotStart: base, TargetTimeslotEnd: base.Add(time.Minute)},
		{AircraftID: aircraftID, OriginPadID: pMid, TargetPadID: p2,
			OriginTimeslotStart: base.Add(time.Minute), TargetTimeslotEnd: base.Add(2 * time.Minute)},
	}

	ctx := context.Background()
	_, err := p.registerFlightPlans(ctx, userID, legs)
	require.Error(t, err)

	plans.mu.Lock()
	allPlans := make([]domain.FlightPlan, 0, len(plans.fakeFlightPlans.plans))
	for _, fp := range plans.fakeFlightPlans.plans {
		allPlans = append(allPlans, fp)
	}
	plans.mu.Unlock()

	require.Len(t, allPlans, 2)
	for _, fp := range allPlans {
		assert.Equal(t, domain.FlightPlanCancelled, fp.Status)
	}

	require.Len(t, itineraries.byID, 1)
	for _, it := range itineraries.byID {
		assert.Equal(t, domain.ItineraryCancelled, it.Status)
	}
}

func TestSubmitThenCancelTask(t *testing.T) {
	p, _, tasks, _, _ := newTestProcessor(t)
	ctx := context.Background()

	id, err := p.Submit(ctx, domain.Task{
		Action:   domain.ActionCreateItinerary,
		Priority: domain.PriorityHigh,
		UserID:   uuid.New(),
		Expiry:   time.Now().Add(time.Hour),
	}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, p.CancelTask(ctx, id))

	task, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRejected, task.Status)
	assert.Equal(t, domain.RationaleClientCancelled, task.Rationale)

	err = p.CancelTask(ctx, id)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestTickSkipsAlreadyCancelledTask(t *testing.T) {
	p, q, tasks, _, _ := newTestProcessor(t)
	ctx := context.Background()

	id, err := p.Submit(ctx, domain.Task{
		Action: domain.ActionCancelItinerary, Priority: domain.PriorityLow,
		UserID: uuid.New(), Expiry: time.Now().Add(time.Hour), CancelItineraryBody: uuid.New(),
	}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.CancelTask(ctx, id))

	q.popped = []queue.Popped{{Priority: domain.PriorityLow, TaskID: id}}
	require.NoError(t, p.tick(ctx))

	task, _ := tasks.Get(ctx, id)
	assert.Equal(t, domain.TaskRejected, task.Status)
	assert.Equal(t, domain.RationaleClientCancelled, task.Rationale)
}

func TestTickRejectsExpiredTask(t *testing.T) {
	p, q, tasks, _, _ := newTestProcessor(t)
	ctx := context.Background()

	task := domain.Task{ID: 1, Action: domain.ActionCreateItinerary, Priority: domain.PriorityLow,
		UserID: uuid.New(), Status: domain.TaskQueued, Expiry: time.Now().Add(-time.Minute)}
	require.NoError(t, tasks.Put(ctx, task, time.Hour))

	q.popped = []queue.Popped{{Priority: domain.PriorityLow, TaskID: 1}}
	require.NoError(t, p.tick(ctx))

	got, _ := tasks.Get(ctx, 1)
	assert.Equal(t, domain.TaskRejected, got.Status)
	assert.Equal(t, domain.RationaleExpired, got.Rationale)
}

func TestDispatchCancelItineraryRefusesAfterDeparture(t *testing.T) {
	p, _, _, plans, itineraries := newTestProcessor(t)
	ctx := context.Background()
	userID := uuid.New()

	planID, err := plans.Insert(ctx, domain.FlightPlan{
		Status:              domain.FlightPlanCommitted,
		OriginTimeslotStart: time.Now().Add(-time.Hour),
		TargetTimeslotEnd:   time.Now().Add(-30 * time.Minute),
	})
	require.NoError(t, err)

	itID, err := itineraries.Insert(ctx, domain.Itinerary{UserID: userID, Status: domain.ItineraryActive})
	require.NoError(t, err)
	require.NoError(t, itineraries.LinkFlightPlans(ctx, itID, []uuid.UUID{planID}))

	task := domain.Task{ID: 9, Action: domain.ActionCancelItinerary, UserID: userID, CancelItineraryBody: itID}
	p.dispatchCancelItinerary(ctx, task)

	// finish() persists via p.tasks, but this task was never Put; assert the
	// itinerary was left untouched instead, which is the observable effect
	// of the schedule-conflict short-circuit.
	it, err := itineraries.Get(ctx, itID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItineraryActive, it.Status)
}

func TestDispatchCancelItineraryHappyPath(t *testing.T) {
	p, _, tasks, plans, itineraries := newTestProcessor(t)
	ctx := context.Background()
	userID := uuid.New()

	planID, err := plans.Insert(ctx, domain.FlightPlan{
		Status:              domain.FlightPlanCommitted,
		OriginTimeslotStart: time.Now().Add(time.Hour),
		TargetTimeslotEnd:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	itID, err := itineraries.Insert(ctx, domain.Itinerary{UserID: userID, Status: domain.ItineraryActive})
	require.NoError(t, err)
	require.NoError(t, itineraries.LinkFlightPlans(ctx, itID, []uuid.UUID{planID}))

	task := domain.Task{ID: 10, Action: domain.ActionCancelItinerary, UserID: userID, CancelItineraryBody: itID}
	require.NoError(t, tasks.Put(ctx, task, time.Hour))
	p.dispatchCancelItinerary(ctx, task)

	got, _ := tasks.Get(ctx, 10)
	assert.Equal(t, domain.TaskComplete, got.Status)

	it, _ := itineraries.Get(ctx, itID)
	assert.Equal(t, domain.ItineraryCancelled, it.Status)

	plan, _ := plans.GetByID(ctx, planID)
	assert.Equal(t, domain.FlightPlanCancelled, plan.Status)
}
