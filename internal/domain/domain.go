// Package domain defines the core entities of the scheduling engine: pads,
// aircraft, flight plans, itineraries, tasks, and the timeslot/availability
// primitives used to reason about them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlightPlanStatus is the lifecycle state of a single flight plan.
type FlightPlanStatus string

const (
	FlightPlanStatusDraft FlightPlanStatus = "DRAFT"
	FlightPlanCommitted   FlightPlanStatus = "COMMITTED"
	FlightPlanCancelled   FlightPlanStatus = "CANCELLED"
	FlightPlanFinished    FlightPlanStatus = "FINISHED"
)

// ItineraryStatus is the lifecycle state of an itinerary.
type ItineraryStatus string

const (
	ItineraryActive    ItineraryStatus = "ACTIVE"
	ItineraryCancelled ItineraryStatus = "CANCELLED"
)

// TaskAction names the kind of work a Task performs.
type TaskAction string

const (
	ActionCreateItinerary TaskAction = "CREATE_ITINERARY"
	ActionCancelItinerary TaskAction = "CANCEL_ITINERARY"
)

// Priority is one of the four strictly ordered queue classes.
type Priority string

const (
	PriorityEmergency Priority = "EMERGENCY"
	PriorityHigh      Priority = "HIGH"
	PriorityMedium    Priority = "MEDIUM"
	PriorityLow       Priority = "LOW"
)

// Priorities lists every priority class in dispatch order, highest first.
var Priorities = []Priority{PriorityEmergency, PriorityHigh, PriorityMedium, PriorityLow}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskQueued   TaskStatus = "QUEUED"
	TaskComplete TaskStatus = "COMPLETE"
	TaskRejected TaskStatus = "REJECTED"
	TaskNotFound TaskStatus = "NOT_FOUND"
)

// TaskRationale explains why a Task left the QUEUED state.
type TaskRationale string

const (
	RationaleNone              TaskRationale = ""
	RationaleClientCancelled   TaskRationale = "CLIENT_CANCELLED"
	RationaleExpired           TaskRationale = "EXPIRED"
	RationaleScheduleConflict  TaskRationale = "SCHEDULE_CONFLICT"
	RationaleItineraryNotFound TaskRationale = "ITINERARY_ID_NOT_FOUND"
	RationalePriorityChange    TaskRationale = "PRIORITY_CHANGE"
	RationaleInternal          TaskRationale = "INTERNAL"
	RationaleInvalidAction     TaskRationale = "INVALID_ACTION"
)

// Pad is a single vertipad, the atomic unit of pad-occupancy scheduling.
type Pad struct {
	ID           uuid.UUID
	VertiportID  uuid.UUID
	CalendarText string
	Latitude     float64
	Longitude    float64
}

// Aircraft is a single schedulable vehicle.
type Aircraft struct {
	ID             uuid.UUID
	Registration   string
	CalendarText   string
	CruiseSpeedKmh float64
	RangeKm        float64
	MaxPersons     int
	MaxCargoGrams  int
}

// FlightPlan is one leg (main or deadhead) of an itinerary.
type FlightPlan struct {
	ID                  uuid.UUID
	SessionID           string
	AircraftID          uuid.UUID
	OriginPadID         uuid.UUID
	TargetPadID         uuid.UUID
	OriginTimeslotStart time.Time
	TargetTimeslotEnd   time.Time
	Path                []GeoPoint
	Altitudes           []float64
	Status              FlightPlanStatus
	IsDeadhead          bool
}

// GeoPoint is a single waypoint on a flight path.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Itinerary is a committed, ordered sequence of flight plans flown by a
// single aircraft on behalf of a single user.
type Itinerary struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	FlightPlanIDs []uuid.UUID
	Status        ItineraryStatus
	CreatedAt     time.Time
}

// FlightPlanDraft is a proposed, not-yet-persisted leg submitted by a client
// or produced by the search engine.
type FlightPlanDraft struct {
	AircraftID          uuid.UUID
	OriginPadID         uuid.UUID
	TargetPadID         uuid.UUID
	OriginTimeslotStart time.Time
	TargetTimeslotEnd   time.Time
	Path                []GeoPoint
	Altitudes           []float64
	IsDeadhead          bool
}

// Task is a unit of state-changing work processed serially by the scheduler.
type Task struct {
	ID        int64
	Action    TaskAction
	Priority  Priority
	UserID    uuid.UUID
	CreatedAt time.Time
	Expiry    time.Time
	Status    TaskStatus
	Rationale TaskRationale
	Result    string

	// CreateItineraryBody is set when Action == ActionCreateItinerary.
	CreateItineraryBody []FlightPlanDraft
	// CancelItineraryBody is set when Action == ActionCancelItinerary.
	CancelItineraryBody uuid.UUID
}

// Timeslot is a half-open interval [Start, End) during which a resource is
// free (or, in the calendar evaluator's own output, busy — callers interpret
// the interval according to their own contract).
type Timeslot struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the timeslot.
func (t Timeslot) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Overlaps reports whether t and o share any instant.
func (t Timeslot) Overlaps(o Timeslot) bool {
	return t.Start.Before(o.End) && o.Start.Before(t.End)
}

// Availability is the free-timeslot sequence for one resource over a bounded
// query window.
type Availability struct {
	ResourceID uuid.UUID
	Slots      []Timeslot
}
