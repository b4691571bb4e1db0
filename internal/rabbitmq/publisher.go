package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Amadou-dot/restockd/internal/events"
)

const publishTimeout = 5 * time.Second

// Publisher sends order events to a queue through the default exchange.
type Publisher struct {
	pool      *ChannelPool
	queueName string
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(pool *ChannelPool, queueName string) *Publisher {
	return &Publisher{
		pool:      pool,
		queueName: queueName,
	}
}

func (p *Publisher) Publish(ctx context.Context, evt events.OrderEvent) error {
	msg, err := publishing(evt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.pool.GetChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.ReturnChannel(ch)

	err = ch.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key (queue name)
		false,       // mandatory
		false,       // immediate
		msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", evt.Type, evt.OrderID, err)
	}
	return nil
}

func publishing(evt events.OrderEvent) (amqp.Publishing, error) {
	body, err := events.Encode(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		Type:          evt.Type,
		MessageId:     evt.OrderID,
		CorrelationId: evt.CorrelationID,
		Timestamp:     evt.OccurredAt,
		Body:          body,
	}, nil
}
