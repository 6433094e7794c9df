package bootstrap

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aetheric-oss/svc-scheduler/internal/notify"
	"github.com/aetheric-oss/svc-scheduler/internal/processor"
)

// Worker bundles the task processor control loop and the notification
// consumer the worker binary runs concurrently.
type Worker struct {
	Processor *processor.Processor
	Consumer  *notify.Consumer
	Log       *zap.Logger
}

// Run starts the C8 loop and the terminal-event consumer concurrently,
// blocking until ctx is cancelled or either fails.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Log.Info("task processor starting")
		return w.Processor.Run(gctx)
	})

	if w.Consumer != nil {
		g.Go(func() error {
			w.Log.Info("notification consumer starting")
			return w.Consumer.Consume(gctx, func(_ context.Context, event notify.TaskEvent) error {
				w.Log.Info("task reached terminal state",
					zap.Int64("task_id", event.TaskID),
					zap.String("action", string(event.Action)),
					zap.String("status", string(event.Status)),
					zap.String("rationale", string(event.Rationale)),
				)
				return nil
			})
		})
	}

	return g.Wait()
}
