// Package rabbitmq carries order events over AMQP.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var ErrPoolClosed = errors.New("channel pool is closed")

// ChannelPool shares a fixed set of channels over one connection.
type ChannelPool struct {
	conn      *amqp.Connection
	channels  chan *amqp.Channel
	mu        sync.Mutex
	closed    bool
	size      int
	queueName string
	logger    zerolog.Logger
}

// NewChannelPool dials url and pre-creates size channels, each having
// declared the durable queue.
func NewChannelPool(url, queueName string, size int, logger zerolog.Logger) (*ChannelPool, error) {
	if size < 1 {
		size = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pool := &ChannelPool{
		conn:      conn,
		channels:  make(chan *amqp.Channel, size),
		size:      size,
		queueName: queueName,
		logger:    logger.With().Str("component", "rabbitmq").Logger(),
	}

	for i := 0; i < size; i++ {
		ch, err := pool.createChannel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.channels <- ch
	}

	pool.logger.Info().Int("size", size).Str("queue", queueName).Msg("channel pool ready")
	return pool, nil
}

// Connection exposes the pool's connection so consumers can open their own channels.
func (p *ChannelPool) Connection() *amqp.Connection { return p.conn }

func (p *ChannelPool) createChannel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareQueue(ch, p.queueName); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeadLetterExchange and DeadLetterQueue name the topology that receives
// deliveries rejected from queue name.
func DeadLetterExchange(name string) string { return name + ".dlx" }
func DeadLetterQueue(name string) string    { return name + ".dead" }

func queueArgs(name string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange(name),
		"x-dead-letter-routing-key": DeadLetterQueue(name),
	}
}

// DeclareQueue declares the durable events queue along with its dead-letter
// exchange and queue. Declaring is idempotent.
func DeclareQueue(ch Declarer, name string) error {
	dlx, dlq := DeadLetterExchange(name), DeadLetterQueue(name)

	err := ch.ExchangeDeclare(
		dlx,      // name
		"direct", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(dlq, dlq, dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err = ch.QueueDeclare(
		name,            // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		queueArgs(name), // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// GetChannel waits for a free channel, replacing it when it has closed.
func (p *ChannelPool) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPoolClosed
		}
		if ch.IsClosed() {
			return p.createChannel()
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReturnChannel puts ch back, closing it if the pool is full or closed.
func (p *ChannelPool) ReturnChannel(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		ch.Close()
	}
}

// Close closes all channels and the connection
func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.channels)
	for ch := range p.channels {
		ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.logger.Info().Msg("channel pool closed")
}
