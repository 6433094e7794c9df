// Package taskstore persists Task records keyed by task id, with a
// TTL-bearing hash per task and a dedicated monotonic-counter key for id
// allocation, following the queue-store wire contract literally: a single
// scheduler:tasks:counter key incremented atomically, distinct from the
// original implementation's HINCRBY-on-a-shared-hash approach (see
// DESIGN.md).
//
// Grounded on tasks/pool.rs's Redis hash-per-task pattern and
// tasks/mod.rs's keepalive-TTL-on-every-update behavior, expressed with the
// teacher's internal/cache typed-wrapper-around-*redis.Client idiom.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// ErrNotFound is returned when a task id has no record (either it never
// existed or its TTL has expired).
var ErrNotFound = errors.New("taskstore: task not found")

const counterKey = "scheduler:tasks:counter"

func recordKey(id int64) string { return fmt.Sprintf("scheduler:tasks:%d", id) }

// Store is a Redis-backed Task record store.
type Store struct {
	client *redis.Client
}

// NewStore builds a Store over an existing Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// NextID allocates the next monotonic task id.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	id, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("taskstore: increment counter: %w", err)
	}
	return id, nil
}

// Put persists a task record with the given TTL.
func (s *Store) Put(ctx context.Context, task domain.Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskstore: encode task %d: %w", task.ID, err)
	}
	key := recordKey(task.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskstore: put task %d: %w", task.ID, err)
	}
	return nil
}

// Get retrieves a task record, or ErrNotFound if absent/expired.
func (s *Store) Get(ctx context.Context, id int64) (domain.Task, error) {
	data, err := s.client.HGet(ctx, recordKey(id), "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("taskstore: get task %d: %w", id, err)
	}
	var task domain.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return domain.Task{}, fmt.Errorf("taskstore: decode task %d: %w", id, err)
	}
	return task, nil
}

// UpdateStatus applies a status/rationale/result transition and extends the
// record's TTL, matching the original's TASK_KEEPALIVE_DURATION behavior of
// extending TTL on every update rather than only at creation.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, ttl time.Duration) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	task.Status = status
	task.Rationale = rationale
	if result != "" {
		task.Result = result
	}
	return s.Put(ctx, task, ttl)
}
