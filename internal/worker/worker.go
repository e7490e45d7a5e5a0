// Package worker consumes parking events from the queue and turns them into notifications.
package worker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"playas/internal/events"
	"playas/internal/metrics"
)

type Handler interface {
	Handle(ctx context.Context, e events.Event) error
}

type Worker struct {
	Handler Handler
	Id      int
	Timeout time.Duration
}

// Process decodes and handles one delivery.
func (w *Worker) Process(ctx context.Context, m amqp.Delivery) error {
	e, err := events.Decode(m.Body)
	if err != nil {
		metrics.EventsProcessed.WithLabelValues("unknown", "error").Inc()
		return err
	}
	log.WithFields(log.Fields{"worker": w.Id, "type": e.Type, "lot_id": e.LotID}).Debug("Processing event")

	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	if err := w.Handler.Handle(ctx, e); err != nil {
		metrics.EventsProcessed.WithLabelValues(e.Type, "error").Inc()
		return err
	}
	metrics.EventsProcessed.WithLabelValues(e.Type, "ok").Inc()
	return nil
}

// Consume acks handled deliveries and drops failed ones without requeue.
func (w *Worker) Consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if err := w.Process(ctx, m); err != nil {
				log.WithError(err).WithField("worker", w.Id).Error("Failed to process event")
				if err := m.Nack(false, false); err != nil {
					log.WithError(err).Warn("Failed to nack event")
				}
				continue
			}
			if err := m.Ack(false); err != nil {
				log.WithError(err).Warn("Failed to ack event")
			}
		}
	}
}

// Run starts n workers on the same delivery channel and waits for them.
func Run(ctx context.Context, h Handler, msgs <-chan amqp.Delivery, n int) {
	if n <= 0 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		w := &Worker{Handler: h, Id: i, Timeout: 30 * time.Second}
		go func() {
			defer wg.Done()
			w.Consume(ctx, msgs)
		}()
	}
	wg.Wait()
}
