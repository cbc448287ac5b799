package backup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/jasknotes/internal/logging"
	"github.com/jask/jasknotes/internal/metrics"
)

// Queue is the one-way boundary to the worker.
type Queue interface {
	Enqueue(ctx context.Context, kind, argument string) (string, error)
}

// Dispatcher validates actions and hands them to the worker queue without
// waiting for the work itself.
type Dispatcher struct {
	queue Queue
	log   *zap.Logger
}

func NewDispatcher(q Queue, log *zap.Logger) *Dispatcher {
	return &Dispatcher{queue: q, log: logging.OrNop(log).Named("dispatcher")}
}

// Submit enqueues a. It returns ErrNothingSelected or ErrUnknownAction
// (wrapped) without touching the queue when a is incomplete.
func (d *Dispatcher) Submit(ctx context.Context, a Action) error {
	if err := a.Validate(); err != nil {
		reason := "invalid"
		switch {
		case errors.Is(err, ErrNothingSelected):
			reason = "nothing_selected"
		case errors.Is(err, ErrUnknownAction):
			reason = "unknown_action"
			d.log.Error("refusing unknown backup action", zap.String("kind", string(a.Kind)))
		}
		metrics.RecordRejected(reason)
		return err
	}
	id, err := d.queue.Enqueue(ctx, string(a.Kind), a.Argument())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", a.Kind, err)
	}
	metrics.RecordDispatch(string(a.Kind))
	d.log.Info("backup action queued",
		zap.String("job_id", id),
		zap.String("kind", string(a.Kind)),
		zap.String("argument", a.Argument()),
	)
	return nil
}
