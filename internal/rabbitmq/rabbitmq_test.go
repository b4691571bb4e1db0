package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amadou-dot/restockd/internal/events"
)

type ackRecorder struct {
	acked   int
	nacked  int
	requeue []bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acked++; return nil }
func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = append(a.requeue, requeue)
	return nil
}
func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func delivery(t *testing.T, ack *ackRecorder, evt events.OrderEvent, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := events.Encode(evt)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

var sample = events.OrderEvent{
	Type:          events.TypeOrderCompleted,
	OrderID:       "ord-1",
	UserID:        "u1",
	CorrelationID: "req-1",
	OccurredAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
}

func TestPublishing(t *testing.T) {
	msg, err := publishing(sample)
	require.NoError(t, err)

	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, events.TypeOrderCompleted, msg.Type)
	assert.Equal(t, "ord-1", msg.MessageId)
	assert.Equal(t, "req-1", msg.CorrelationId)

	back, err := events.Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, sample.OrderID, back.OrderID)
}

func TestHandle(t *testing.T) {
	var got []string
	failing := errors.New("s3 down")
	var fail bool
	c := NewConsumer(nil, "order-events", 1, func(ctx context.Context, evt events.OrderEvent) error {
		got = append(got, evt.OrderID)
		if fail {
			return failing
		}
		return nil
	}, zerolog.Nop())
	c.retryDelay = time.Millisecond

	t.Run("success acks", func(t *testing.T) {
		ack := &ackRecorder{}
		c.handle(context.Background(), delivery(t, ack, sample, false))
		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, 0, ack.nacked)
	})

	t.Run("first failure requeues", func(t *testing.T) {
		fail = true
		defer func() { fail = false }()
		ack := &ackRecorder{}
		c.handle(context.Background(), delivery(t, ack, sample, false))
		assert.Equal(t, []bool{true}, ack.requeue)
	})

	t.Run("redelivered failure is rejected to the dead-letter exchange", func(t *testing.T) {
		fail = true
		defer func() { fail = false }()
		ack := &ackRecorder{}
		c.handle(context.Background(), delivery(t, ack, sample, true))
		assert.Equal(t, []bool{false}, ack.requeue)
	})

	t.Run("shutdown cuts the retry delay short", func(t *testing.T) {
		fail = true
		defer func() { fail = false }()
		slow := *c
		slow.retryDelay = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ack := &ackRecorder{}
		start := time.Now()
		slow.handle(ctx, delivery(t, ack, sample, false))
		assert.Less(t, time.Since(start), time.Minute)
		assert.Equal(t, []bool{true}, ack.requeue)
	})

	t.Run("malformed is dropped without calling the handler", func(t *testing.T) {
		before := len(got)
		ack := &ackRecorder{}
		c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"type":""}`)})
		assert.Equal(t, []bool{false}, ack.requeue)
		assert.Len(t, got, before)
	})
}

type declaredQueue struct {
	name string
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

type topologyRecorder struct {
	exchanges []string
	queues    []declaredQueue
	bindings  []binding
	err       error
}

func (r *topologyRecorder) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	r.exchanges = append(r.exchanges, kind+":"+name)
	return r.err
}

func (r *topologyRecorder) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	r.queues = append(r.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (r *topologyRecorder) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	r.bindings = append(r.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func TestDeclareQueue(t *testing.T) {
	rec := &topologyRecorder{}
	require.NoError(t, DeclareQueue(rec, "order-events"))

	assert.Equal(t, []string{"direct:order-events.dlx"}, rec.exchanges)
	assert.Equal(t, []binding{{queue: "order-events.dead", key: "order-events.dead", exchange: "order-events.dlx"}}, rec.bindings)

	require.Len(t, rec.queues, 2)
	assert.Equal(t, "order-events.dead", rec.queues[0].name)
	assert.Nil(t, rec.queues[0].args)

	q := rec.queues[1]
	assert.Equal(t, "order-events", q.name)
	assert.Equal(t, "order-events.dlx", q.args["x-dead-letter-exchange"])
	assert.Equal(t, "order-events.dead", q.args["x-dead-letter-routing-key"])
	assert.NoError(t, q.args.Validate())
}

func TestDeclareQueue_ExchangeError(t *testing.T) {
	rec := &topologyRecorder{err: errors.New("access refused")}
	err := DeclareQueue(rec, "order-events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead-letter exchange")
	assert.Empty(t, rec.queues, "main queue is not declared without its dead-letter target")
}
