// Package processor implements the task processor (C8): a single logical
// worker that drains the priority queues and executes CREATE_ITINERARY and
// CANCEL_ITINERARY task handlers to completion, one at a time.
//
// Grounded on tasks/mod.rs's task_loop (fetch, skip-if-not-queued, dispatch,
// persist-with-TTL-extension), with the original's manual idle-sleep
// polling replaced by internal/queue's blocking PopMinBlocking.
package processor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/metrics"
	"github.com/aetheric-oss/svc-scheduler/internal/notify"
	"github.com/aetheric-oss/svc-scheduler/internal/queue"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
	"github.com/aetheric-oss/svc-scheduler/internal/taskstore"
)

// keepaliveTTL is how long a terminal Task record survives after
// completion so clients can still poll it, ported from the original's
// TASK_KEEPALIVE_DURATION_MINUTES constant.
const keepaliveTTL = 60 * time.Minute

// taskQueues is the subset of *queue.Queues the processor depends on,
// narrowed to an interface so dispatch logic can be exercised against a
// fake in tests without a live Redis.
type taskQueues interface {
	Add(ctx context.Context, priority domain.Priority, taskID int64, expiry time.Time) error
	Remove(ctx context.Context, priority domain.Priority, taskID int64) error
	PopMinBlocking(ctx context.Context, timeout time.Duration) (queue.Popped, bool, error)
}

// taskRecords is the subset of *taskstore.Store the processor depends on.
type taskRecords interface {
	NextID(ctx context.Context) (int64, error)
	Put(ctx context.Context, task domain.Task, ttl time.Duration) error
	Get(ctx context.Context, id int64) (domain.Task, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, ttl time.Duration) error
}

// Processor runs the C8 control loop.
type Processor struct {
	queues     taskQueues
	tasks      taskRecords
	engine     *search.Engine
	store      *storage.Store
	notifier   *notify.Producer
	log        *zap.Logger
	metrics    *metrics.Recorder
	popTimeout time.Duration
}

// Option configures a Processor at construction time, following the
// teacher's BookingServiceOption functional-options pattern.
type Option func(*Processor)

// WithLogger overrides the processor's logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithNotifier attaches an event producer for terminal task states.
func WithNotifier(n *notify.Producer) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithPopTimeout overrides the blocking pop timeout (task_pop_timeout).
func WithPopTimeout(d time.Duration) Option {
	return func(p *Processor) { p.popTimeout = d }
}

// New constructs a Processor over concrete Redis-backed queues and task
// records.
func New(queues *queue.Queues, tasks *taskstore.Store, engine *search.Engine, store *storage.Store, opts ...Option) *Processor {
	p := &Processor{
		queues:     queues,
		tasks:      tasks,
		engine:     engine,
		store:      store,
		log:        zap.NewNop(),
		popTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains the queues until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.tick(ctx); err != nil {
			p.log.Error("task processor tick failed", zap.Error(err))
		}
	}
}

// tick pops at most one task and dispatches it. Called directly by tests as
// a deterministic single-step alternative to Run's infinite loop.
func (p *Processor) tick(ctx context.Context) error {
	popStart := time.Now()
	popped, ok, err := p.queues.PopMinBlocking(ctx, p.popTimeout)
	if p.metrics != nil {
		p.metrics.ObserveQueuePopLatency(time.Since(popStart).Seconds())
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	task, err := p.tasks.Get(ctx, popped.TaskID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			p.log.Warn("popped task has no record", zap.Int64("task_id", popped.TaskID))
			return nil
		}
		return err
	}

	if task.Status != domain.TaskQueued {
		return nil // already cancelled or finalized
	}

	now := time.Now()
	if task.Expiry.Before(now) {
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleExpired, "")
		return nil
	}

	switch task.Action {
	case domain.ActionCreateItinerary:
		p.dispatchCreateItinerary(ctx, task)
	case domain.ActionCancelItinerary:
		p.dispatchCancelItinerary(ctx, task)
	default:
		p.finish(ctx, task, domain.TaskRejected, domain.RationaleInvalidAction, "")
	}
	return nil
}

// finish persists a terminal status transition, extends the record's TTL,
// records metrics, and publishes a notification event.
func (p *Processor) finish(ctx context.Context, task domain.Task, status domain.TaskStatus, rationale domain.TaskRationale, result string) {
	if err := p.tasks.UpdateStatus(ctx, task.ID, status, rationale, result, keepaliveTTL); err != nil {
		p.log.Error("failed to persist task status", zap.Int64("task_id", task.ID), zap.Error(err))
		return
	}
	if p.metrics != nil {
		p.metrics.RecordTaskOutcome(string(task.Action), string(status), string(rationale))
	}
	if p.notifier != nil {
		event := notify.TaskEvent{
			TaskID:    task.ID,
			Action:    task.Action,
			Status:    status,
			Rationale: rationale,
			UserID:    task.UserID.String(),
			Result:    result,
		}
		if err := p.notifier.PublishWithRetry(ctx, event, 3); err != nil {
			p.log.Warn("failed to publish task event", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
}

// Submit allocates a task id, persists the QUEUED record, and enqueues it.
// It is the entry point used by the RPC layer for both CREATE_ITINERARY and
// CANCEL_ITINERARY requests.
func (p *Processor) Submit(ctx context.Context, task domain.Task, ttl time.Duration) (int64, error) {
	id, err := p.tasks.NextID(ctx)
	if err != nil {
		return 0, err
	}
	task.ID = id
	task.Status = domain.TaskQueued
	task.CreatedAt = time.Now()

	if err := p.tasks.Put(ctx, task, ttl); err != nil {
		return 0, err
	}
	if err := p.queues.Add(ctx, task.Priority, task.ID, task.Expiry); err != nil {
		return 0, err
	}
	return id, nil
}

// CancelTask marks a QUEUED task REJECTED/CLIENT_CANCELLED. It returns
// ErrAlreadyProcessed if the task is already terminal.
func (p *Processor) CancelTask(ctx context.Context, id int64) error {
	task, err := p.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskQueued {
		return ErrAlreadyProcessed
	}
	if err := p.queues.Remove(ctx, task.Priority, id); err != nil {
		p.log.Warn("failed to remove cancelled task from queue", zap.Int64("task_id", id), zap.Error(err))
	}
	return p.tasks.UpdateStatus(ctx, id, domain.TaskRejected, domain.RationaleClientCancelled, "", keepaliveTTL)
}

// GetTaskStatus retrieves a task's current record.
func (p *Processor) GetTaskStatus(ctx context.Context, id int64) (domain.Task, error) {
	return p.tasks.Get(ctx, id)
}

// ErrAlreadyProcessed is returned by CancelTask when the task has already
// left the QUEUED state.
var ErrAlreadyProcessed = errors.New("processor: task already processed")
