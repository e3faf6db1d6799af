package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher delivers notifications in the background. Each delivery is
// bounded by timeout and failures are only logged.
type Dispatcher struct {
	sink    Notifier
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sink Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dispatcher) Dispatch(n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sink.Notify(ctx, n); err != nil {
			d.logger.Warn("Notification delivery failed",
				zap.String("kind", string(n.Kind)),
				zap.String("session_id", n.SessionID.String()),
				zap.Error(err),
			)
			return
		}
		d.logger.Debug("Notification delivered",
			zap.String("kind", string(n.Kind)),
			zap.String("session_id", n.SessionID.String()),
		)
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
