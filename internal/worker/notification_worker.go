package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/solar-storefront/internal/cache"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/model"
)

const (
	NotificationQueue = "order.notifications"
	DeadLetterQueue   = "order.notifications.dlq"
	idempotencyTTL    = 24 * time.Hour
)

type EventHandler interface {
	HandleEvent(ctx context.Context, evt model.OrderEvent) error
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

type NotificationWorker struct {
	channel *amqp.Channel
	handler EventHandler
	seen    cache.IdempotencyStore
	log     *slog.Logger
	done    chan struct{}
}

func NewNotificationWorker(ch *amqp.Channel, handler EventHandler, seen cache.IdempotencyStore, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{
		channel: ch,
		handler: handler,
		seen:    seen,
		log:     log,
		done:    make(chan struct{}),
	}
}

// SetupRabbitMQ declares the order events exchange, the notification queue
// and its dead-letter route.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(events.Exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(events.DLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, NotificationQueue, events.DLX, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    events.DLX,
		"x-dead-letter-routing-key": NotificationQueue,
	}); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}
	if err := ch.QueueBind(NotificationQueue, "", events.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind notification queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(NotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					w.log.Warn("notification delivery channel closed")
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started", "queue", NotificationQueue)
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var err error
	switch w.handle(ctx, msg.Body, msg.Redelivered) {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	case outcomeDeadLetter:
		err = msg.Nack(false, false)
	}
	if err != nil {
		w.log.Error("settle delivery", "error", err, "message_id", msg.MessageId)
	}
}

// handle decodes and applies one delivery. Events are deduplicated by id so a
// redelivered message is acknowledged without side effects.
func (w *NotificationWorker) handle(ctx context.Context, body []byte, redelivered bool) outcome {
	var evt model.OrderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		w.log.Error("unmarshal order event", "error", err)
		return outcomeDeadLetter
	}
	if evt.ID == uuid.Nil || evt.OrderID == uuid.Nil {
		w.log.Error("order event missing ids", "event_id", evt.ID, "order_id", evt.OrderID)
		return outcomeDeadLetter
	}

	log := w.log.With("event_id", evt.ID, "order_id", evt.OrderID, "kind", evt.Kind, "version", evt.Version)

	first, err := w.seen.MarkProcessed(ctx, evt.ID.String(), idempotencyTTL)
	if err != nil {
		log.Error("check idempotency key", "error", err)
		return outcomeRequeue
	}
	if !first {
		log.Info("event already processed, skipping")
		return outcomeAck
	}

	if err := w.handler.HandleEvent(ctx, evt); err != nil {
		if ferr := w.seen.Forget(ctx, evt.ID.String()); ferr != nil {
			log.Error("release idempotency key", "error", ferr)
		}
		if redelivered {
			log.Error("handle order event failed twice, dead-lettering", "error", err)
			return outcomeDeadLetter
		}
		log.Warn("handle order event failed, requeueing", "error", err)
		return outcomeRequeue
	}

	log.Debug("order event handled")
	return outcomeAck
}
