// Package rpcapi implements the C9 external RPC surface as HTTP+JSON gin
// handlers, plus a gRPC health service — the wire encoding chosen for this
// port since the specification leaves encoding to the implementer and the
// teacher's generated protobuf packages are unavailable (see DESIGN.md).
//
// Grounded on api/bookings.go and api/flights.go's handler-struct-with-
// Register(*gin.RouterGroup) pattern from the teacher repository.
package rpcapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/metrics"
	"github.com/aetheric-oss/svc-scheduler/internal/processor"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
)

// Pinger checks that a dependency handshake is alive. *pgxpool.Pool and
// *queue.Queues both satisfy this directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the scheduler's RPC surface.
type Handler struct {
	engine         *search.Engine
	processor      *processor.Processor
	metrics        *metrics.Recorder
	defaultTaskTTL time.Duration
	storagePing    Pinger
	queuePing      Pinger
}

// NewHandler builds a Handler. recorder may be nil, in which case search
// timing is not observed. defaultTaskTTL is applied to requests that omit
// an expiry. storagePing and queuePing may be nil, in which case isReady
// skips that handshake check (e.g. in tests); in production they are the
// C4 Postgres pool and C7 Redis queues respectively, matching spec.md
// §4.9's "ready once C4/C7 handshakes have completed".
func NewHandler(engine *search.Engine, proc *processor.Processor, recorder *metrics.Recorder, defaultTaskTTL time.Duration, storagePing, queuePing Pinger) *Handler {
	return &Handler{engine: engine, processor: proc, metrics: recorder, defaultTaskTTL: defaultTaskTTL, storagePing: storagePing, queuePing: queuePing}
}

// Register wires every route onto router, matching the teacher's
// per-capability Register(*gin.RouterGroup) convention.
func (h *Handler) Register(router *gin.RouterGroup) {
	router.POST("/itineraries/query", h.queryItineraries)
	router.POST("/itineraries", h.createItinerary)
	router.POST("/itineraries/:id/cancel", h.cancelItinerary)
	router.POST("/tasks/:id/cancel", h.cancelTask)
	router.GET("/tasks/:id", h.getTaskStatus)
	router.GET("/ready", h.isReady)
}

type geoPointDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type legDTO struct {
	AircraftID          uuid.UUID     `json:"aircraft_id"`
	OriginPadID         uuid.UUID     `json:"origin_pad_id"`
	TargetPadID         uuid.UUID     `json:"target_pad_id"`
	OriginTimeslotStart time.Time     `json:"origin_timeslot_start"`
	TargetTimeslotEnd   time.Time     `json:"target_timeslot_end"`
	Path                []geoPointDTO `json:"path,omitempty"`
	Altitudes           []float64     `json:"altitudes,omitempty"`
	IsDeadhead          bool          `json:"is_deadhead"`
}

func toLegDTO(l domain.FlightPlanDraft) legDTO {
	dto := legDTO{
		AircraftID:          l.AircraftID,
		OriginPadID:         l.OriginPadID,
		TargetPadID:         l.TargetPadID,
		OriginTimeslotStart: l.OriginTimeslotStart,
		TargetTimeslotEnd:   l.TargetTimeslotEnd,
		Altitudes:           l.Altitudes,
		IsDeadhead:          l.IsDeadhead,
	}
	for _, p := range l.Path {
		dto.Path = append(dto.Path, geoPointDTO{Latitude: p.Latitude, Longitude: p.Longitude})
	}
	return dto
}

func fromLegDTO(dto legDTO) domain.FlightPlanDraft {
	leg := domain.FlightPlanDraft{
		AircraftID:          dto.AircraftID,
		OriginPadID:         dto.OriginPadID,
		TargetPadID:         dto.TargetPadID,
		OriginTimeslotStart: dto.OriginTimeslotStart,
		TargetTimeslotEnd:   dto.TargetTimeslotEnd,
		Altitudes:           dto.Altitudes,
		IsDeadhead:          dto.IsDeadhead,
	}
	for _, p := range dto.Path {
		leg.Path = append(leg.Path, domain.GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude})
	}
	return leg
}

type queryItinerariesRequest struct {
	OriginPadID       uuid.UUID `json:"origin_pad_id" binding:"required"`
	DestinationPadID  uuid.UUID `json:"dest_pad_id" binding:"required"`
	EarliestDeparture time.Time `json:"earliest_dep" binding:"required"`
	LatestArrival     time.Time `json:"latest_arr" binding:"required"`
	IsCargo           bool      `json:"is_cargo"`
	Persons           int       `json:"persons"`
	WeightGrams       int       `json:"weight_g"`
}

type itineraryResultDTO struct {
	AircraftID    uuid.UUID `json:"aircraft_id"`
	Legs          []legDTO  `json:"legs"`
	DeadheadTotal string    `json:"deadhead_total"`
	Departure     time.Time `json:"departure"`
}

func (h *Handler) queryItineraries(c *gin.Context) {
	var req queryItinerariesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queryStart := time.Now()
	results, err := h.engine.Query(c.Request.Context(), search.Request{
		OriginPadID:       req.OriginPadID,
		DestinationPadID:  req.DestinationPadID,
		EarliestDeparture: req.EarliestDeparture,
		LatestArrival:     req.LatestArrival,
		IsCargo:           req.IsCargo,
		Persons:           req.Persons,
		WeightGrams:       req.WeightGrams,
	}, time.Now())
	if h.metrics != nil {
		h.metrics.ObserveSearchDuration(time.Since(queryStart).Seconds())
	}
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, search.ErrInvalidItinerary) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	out := make([]itineraryResultDTO, 0, len(results))
	for _, r := range results {
		dto := itineraryResultDTO{AircraftID: r.AircraftID, DeadheadTotal: r.DeadheadTotal.String(), Departure: r.Departure}
		for _, leg := range r.Legs {
			dto.Legs = append(dto.Legs, toLegDTO(leg))
		}
		out = append(out, dto)
	}
	c.JSON(http.StatusOK, gin.H{"itineraries": out})
}

type taskResponseDTO struct {
	TaskID   int64  `json:"task_id"`
	Action   string `json:"action"`
	Status   string `json:"status"`
	Rationale string `json:"status_rationale,omitempty"`
	UserID   string `json:"user_id"`
	Result   string `json:"result,omitempty"`
}

func toTaskResponse(t domain.Task) taskResponseDTO {
	return taskResponseDTO{
		TaskID:    t.ID,
		Action:    string(t.Action),
		Status:    string(t.Status),
		Rationale: string(t.Rationale),
		UserID:    t.UserID.String(),
		Result:    t.Result,
	}
}

type createItineraryRequest struct {
	Priority domain.Priority `json:"priority" binding:"required"`
	Legs     []legDTO        `json:"legs" binding:"required"`
	Expiry   time.Time       `json:"expiry"`
	UserID   uuid.UUID       `json:"user_id" binding:"required"`
}

func (h *Handler) createItinerary(c *gin.Context) {
	var req createItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Expiry.IsZero() {
		req.Expiry = time.Now().Add(h.defaultTaskTTL)
	}

	legs := make([]domain.FlightPlanDraft, 0, len(req.Legs))
	for _, l := range req.Legs {
		legs = append(legs, fromLegDTO(l))
	}
	if err := search.ValidateStructure(legs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.processor.Submit(c.Request.Context(), domain.Task{
		Action:              domain.ActionCreateItinerary,
		Priority:            req.Priority,
		UserID:              req.UserID,
		Expiry:              req.Expiry,
		CreateItineraryBody: legs,
	}, time.Until(req.Expiry))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, taskResponseDTO{TaskID: id, Action: string(domain.ActionCreateItinerary), Status: string(domain.TaskQueued), UserID: req.UserID.String()})
}

type cancelItineraryRequest struct {
	Priority domain.Priority `json:"priority" binding:"required"`
	Expiry   time.Time       `json:"expiry"`
	UserID   uuid.UUID       `json:"user_id" binding:"required"`
}

func (h *Handler) cancelItinerary(c *gin.Context) {
	itineraryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid itinerary id"})
		return
	}
	var req cancelItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Expiry.IsZero() {
		req.Expiry = time.Now().Add(h.defaultTaskTTL)
	}

	id, err := h.processor.Submit(c.Request.Context(), domain.Task{
		Action:              domain.ActionCancelItinerary,
		Priority:            req.Priority,
		UserID:              req.UserID,
		Expiry:              req.Expiry,
		CancelItineraryBody: itineraryID,
	}, time.Until(req.Expiry))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, taskResponseDTO{TaskID: id, Action: string(domain.ActionCancelItinerary), Status: string(domain.TaskQueued), UserID: req.UserID.String()})
}

func (h *Handler) cancelTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	if err := h.processor.CancelTask(c.Request.Context(), id); err != nil {
		if errors.Is(err, processor.ErrAlreadyProcessed) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	task, err := h.processor.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"task_id": id, "status": string(domain.TaskRejected)})
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

func (h *Handler) getTaskStatus(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	task, err := h.processor.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"task_id": id, "status": string(domain.TaskNotFound)})
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

// isReady reports ready only once the storage (C4) and queue-store (C7)
// handshakes both succeed, per spec.md §4.9.
func (h *Handler) isReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.storagePing != nil {
		if err := h.storagePing.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "storage: " + err.Error()})
			return
		}
	}
	if h.queuePing != nil {
		if err := h.queuePing.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "queue: " + err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func parseTaskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}
