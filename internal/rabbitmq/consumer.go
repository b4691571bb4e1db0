package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Amadou-dot/restockd/internal/events"
)

// defaultRetryDelay is how long a worker holds a failed delivery before
// requeueing it.
const defaultRetryDelay = 5 * time.Second

// Handler processes one decoded event. A returned error requeues the
// delivery once after the retry delay; a second failure routes it to the
// queue's dead-letter exchange.
type Handler func(ctx context.Context, evt events.OrderEvent) error

// Consumer runs a fixed number of workers, each on its own channel with a
// prefetch of one.
type Consumer struct {
	conn       *amqp.Connection
	queueName  string
	workers    int
	handler    Handler
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, queueName string, workers int, handler Handler, logger zerolog.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		conn:       conn,
		queueName:  queueName,
		workers:    workers,
		handler:    handler,
		retryDelay: defaultRetryDelay,
		logger:     logger.With().Str("component", "consumer").Str("queue", queueName).Logger(),
	}
}

// Run consumes until ctx is cancelled or a delivery channel closes. A closed
// channel stops the remaining workers and is reported as the error.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < c.workers; i++ {
		i := i // per-iteration copy (module targets go 1.21 loop semantics)
		ch, msgs, err := c.open(gctx, i)
		if err != nil {
			cancel()
			return errors.Join(err, g.Wait())
		}

		g.Go(func() error {
			defer ch.Close()
			c.logger.Info().Int("worker", i).Msg("worker started")
			defer c.logger.Info().Int("worker", i).Msg("worker stopped")
			for d := range msgs {
				c.handle(gctx, d)
			}
			if gctx.Err() == nil {
				return fmt.Errorf("worker %d: delivery channel closed", i)
			}
			return nil
		})
	}

	return g.Wait()
}

// open gives worker i its own channel with a prefetch of one.
func (c *Consumer) open(ctx context.Context, i int) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel for worker %d: %w", i, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS for worker %d: %w", i, err)
	}
	if err := DeclareQueue(ch, c.queueName); err != nil {
		ch.Close()
		return nil, nil, err
	}
	msgs, err := ch.ConsumeWithContext(ctx,
		c.queueName,                 // queue
		fmt.Sprintf("worker-%d", i), // consumer tag
		false,                       // auto-ack
		false,                       // exclusive
		false,                       // no-local
		false,                       // no-wait
		nil,                         // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("worker %d failed to register consumer: %w", i, err)
	}
	return ch, msgs, nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	evt, err := events.Decode(d.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping malformed message")
		c.settle(d.Nack(false, false))
		return
	}

	log := c.logger.With().Str("order_id", evt.OrderID).Str("event_type", evt.Type).Logger()
	if err := c.handler(log.WithContext(ctx), evt); err != nil {
		requeue := !d.Redelivered
		log.Error().Err(err).Bool("requeue", requeue).Msg("handler failed")
		if requeue {
			c.wait(ctx)
		}
		c.settle(d.Nack(false, requeue))
		return
	}
	c.settle(d.Ack(false))
}

// wait blocks for the retry delay or until ctx is done.
func (c *Consumer) wait(ctx context.Context) {
	if c.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to acknowledge delivery")
	}
}
