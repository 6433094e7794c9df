package taskstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// NextID/Put/Get/UpdateStatus all round-trip through a live *redis.Client
// (TxPipeline, HGet, Incr), so they're covered by integration testing
// against a real Redis rather than here. What's exercised below is the key
// layout and the JSON envelope Put/Get share.

func TestRecordKeyLayout(t *testing.T) {
	assert.Equal(t, "scheduler:tasks:42", recordKey(42))
	assert.Equal(t, "scheduler:tasks:counter", counterKey)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	task := domain.Task{
		ID:                  7,
		Action:              domain.ActionCreateItinerary,
		Priority:            domain.PriorityHigh,
		Status:              domain.TaskQueued,
		UserID:              uuid.New(),
		Expiry:              time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CreateItineraryBody: []domain.FlightPlanDraft{{AircraftID: uuid.New()}},
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded domain.Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.Action, decoded.Action)
	assert.Equal(t, task.UserID, decoded.UserID)
	require.Len(t, decoded.CreateItineraryBody, 1)
	assert.Equal(t, task.CreateItineraryBody[0].AircraftID, decoded.CreateItineraryBody[0].AircraftID)
}
