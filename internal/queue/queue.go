// Package queue implements the four priority-class ordered sets described
// in the queue-store contract: scheduler:{emergency|high|medium|low}, each
// a Redis sorted set scored by the task's expiry timestamp.
//
// Grounded on tasks/pool.rs's four-class design, but PopMinBlocking uses
// go-redis's native BZPopMin across all four keys in priority order in a
// single atomic call, replacing the original's non-atomic
// pop-then-fetch two-round-trip loop.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

func key(p domain.Priority) string {
	switch p {
	case domain.PriorityEmergency:
		return "scheduler:emergency"
	case domain.PriorityHigh:
		return "scheduler:high"
	case domain.PriorityMedium:
		return "scheduler:medium"
	default:
		return "scheduler:low"
	}
}

// Queues is a Redis-backed set of priority queues.
type Queues struct {
	client *redis.Client
}

// NewQueues builds a Queues over an existing Redis client.
func NewQueues(client *redis.Client) *Queues {
	return &Queues{client: client}
}

// Add enqueues a task id into its priority class, scored by its expiry.
func (q *Queues) Add(ctx context.Context, priority domain.Priority, taskID int64, expiry time.Time) error {
	err := q.client.ZAdd(ctx, key(priority), redis.Z{
		Score:  float64(expiry.Unix()),
		Member: strconv.FormatInt(taskID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: add task %d: %w", taskID, err)
	}
	return nil
}

// Ping verifies the Redis handshake is alive, used by the RPC surface's
// isReady liveness probe.
func (q *Queues) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Remove removes a task id from its priority class, e.g. after cancellation.
func (q *Queues) Remove(ctx context.Context, priority domain.Priority, taskID int64) error {
	err := q.client.ZRem(ctx, key(priority), strconv.FormatInt(taskID, 10)).Err()
	if err != nil {
		return fmt.Errorf("queue: remove task %d: %w", taskID, err)
	}
	return nil
}

// Popped is the result of a successful PopMinBlocking call.
type Popped struct {
	Priority domain.Priority
	TaskID   int64
}

// PopMinBlocking scans priority classes in strict order (EMERGENCY first)
// and returns the lowest-scored element of the first non-empty class,
// blocking up to timeout if all classes are empty. ok is false on timeout.
func (q *Queues) PopMinBlocking(ctx context.Context, timeout time.Duration) (Popped, bool, error) {
	keys := make([]string, len(domain.Priorities))
	for i, p := range domain.Priorities {
		keys[i] = key(p)
	}

	result, err := q.client.BZPopMin(ctx, timeout, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return Popped{}, false, nil
		}
		return Popped{}, false, fmt.Errorf("queue: pop min: %w", err)
	}

	taskID, err := strconv.ParseInt(fmt.Sprint(result.Member), 10, 64)
	if err != nil {
		return Popped{}, false, fmt.Errorf("queue: malformed member %v: %w", result.Member, err)
	}
	priority := priorityFromKey(result.Key)
	return Popped{Priority: priority, TaskID: taskID}, true, nil
}

func priorityFromKey(k string) domain.Priority {
	for _, p := range domain.Priorities {
		if key(p) == k {
			return p
		}
	}
	return domain.PriorityLow
}
