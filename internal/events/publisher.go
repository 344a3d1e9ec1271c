package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/solar-storefront/internal/model"
)

const (
	Exchange = "order.events"
	DLX      = "order.events.dlx"
)

type Publisher interface {
	Publish(ctx context.Context, evt model.OrderEvent) error
}

type AMQPPublisher struct {
	ch *amqp.Channel
}

func NewAMQPPublisher(ch *amqp.Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt model.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, Exchange, string(evt.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.ID.String(),
		Timestamp:    evt.OccurredAt,
		Type:         string(evt.Kind),
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// PublisherFunc delivers events in-process, bypassing the broker.
type PublisherFunc func(ctx context.Context, evt model.OrderEvent) error

func (f PublisherFunc) Publish(ctx context.Context, evt model.OrderEvent) error { return f(ctx, evt) }
