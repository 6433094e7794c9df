//go:build integration

package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

func dialTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("SCHEDULER_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %s, skipping integration test: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestPopMinBlockingPreemptsLowerPriority covers spec.md §8 seed scenario 5:
// a LOW priority task enqueued first must not be popped ahead of an
// EMERGENCY priority task enqueued afterward — PopMinBlocking always drains
// the highest non-empty priority class first, regardless of enqueue order.
func TestPopMinBlockingPreemptsLowerPriority(t *testing.T) {
	client := dialTestRedis(t)
	q := NewQueues(client)
	ctx := context.Background()

	t.Cleanup(func() {
		client.Del(ctx, key(domain.PriorityLow), key(domain.PriorityEmergency))
	})

	expiry := time.Now().Add(time.Hour)
	if err := q.Add(ctx, domain.PriorityLow, 100, expiry); err != nil {
		t.Fatalf("add low priority task: %v", err)
	}
	if err := q.Add(ctx, domain.PriorityEmergency, 200, expiry); err != nil {
		t.Fatalf("add emergency priority task: %v", err)
	}

	popped, ok, err := q.PopMinBlocking(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop min blocking: %v", err)
	}
	if !ok {
		t.Fatal("expected a task to be popped")
	}
	if popped.Priority != domain.PriorityEmergency || popped.TaskID != 200 {
		t.Fatalf("expected emergency task 200 to be popped first, got %+v", popped)
	}

	popped, ok, err = q.PopMinBlocking(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop min blocking (second): %v", err)
	}
	if !ok {
		t.Fatal("expected the low priority task to still be popped")
	}
	if popped.Priority != domain.PriorityLow || popped.TaskID != 100 {
		t.Fatalf("expected low task 100 on the second pop, got %+v", popped)
	}
}
