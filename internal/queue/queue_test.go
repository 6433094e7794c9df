package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// PopMinBlocking and Add/Remove require a live Redis (BZPopMin has no
// in-memory stand-in in the reference stack), so they're exercised against
// a real instance in integration testing rather than here. What's covered
// below is the pure key mapping PopMinBlocking's priority ordering and
// Add/Remove both depend on.

func TestKeyPriorityFromKeyRoundTrip(t *testing.T) {
	for _, p := range domain.Priorities {
		assert.Equal(t, p, priorityFromKey(key(p)))
	}
}

func TestPriorityOrderMatchesQueueScanOrder(t *testing.T) {
	assert.Equal(t, "scheduler:emergency", key(domain.Priorities[0]))
	assert.Equal(t, domain.PriorityEmergency, domain.Priorities[0])
	assert.Equal(t, domain.PriorityLow, domain.Priorities[len(domain.Priorities)-1])
}

func TestPriorityFromUnknownKeyDefaultsLow(t *testing.T) {
	assert.Equal(t, domain.PriorityLow, priorityFromKey("scheduler:not-a-real-queue"))
}
