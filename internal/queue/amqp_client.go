package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"financial-reporter/internal/shared/telemetry"
)

// ErrUnrecoverable marks a delivery that must be dropped instead of retried.
var ErrUnrecoverable = errors.New("unrecoverable message")

// DeliveryHandler processes one raw message body.
type DeliveryHandler func(ctx context.Context, body []byte) error

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPClient publishes and consumes report jobs on a durable RabbitMQ queue.
type AMQPClient struct {
	conn    *amqp.Connection
	queue   string
	timeout time.Duration

	mu      sync.Mutex
	channel amqpChannel
}

// NewAMQPClient dials the broker and declares the queue.
func NewAMQPClient(url, queueName string, jobTimeout time.Duration) (*AMQPClient, error) {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return nil, fmt.Errorf("amqp queue name is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	client, err := newAMQPClient(ch, queueName, jobTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newAMQPClient(ch amqpChannel, queueName string, jobTimeout time.Duration) (*AMQPClient, error) {
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	return &AMQPClient{channel: ch, queue: queueName, timeout: jobTimeout}, nil
}

// Send publishes a persistent JSON message.
func (c *AMQPClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode amqp message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.channel.Publish("", c.queue, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		CorrelationId: msg.RequestID,
		MessageId:     msg.ReportID + ":" + msg.Job,
		Timestamp:     time.Now().UTC(),
		Body:          payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Consume runs up to workers handlers at once until ctx is done or the
// channel closes, then waits for in-flight deliveries. The broker prefetch
// matches workers. Successful deliveries are acked. Failed ones are requeued
// once; unrecoverable ones are dropped.
func (c *AMQPClient) Consume(ctx context.Context, workers int, handle DeliveryHandler) error {
	if workers < 1 {
		workers = 1
	}
	if err := c.channel.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	telemetry.Info("amqp.consumer.started", map[string]any{"queue": c.queue, "workers": workers})
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Not started; hand it back to the broker.
				_ = d.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(context.WithoutCancel(ctx), d, handle)
			}(d)
		}
	}
}

func (c *AMQPClient) process(ctx context.Context, d amqp.Delivery, handle DeliveryHandler) {
	jobCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fields := map[string]any{
		"message_id":  d.MessageId,
		"redelivered": d.Redelivered,
	}
	err := handle(jobCtx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			fields["error"] = ackErr.Error()
			telemetry.Error("amqp.ack_failed", fields)
		}
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, ErrUnrecoverable)
	fields["error"] = err.Error()
	fields["requeued"] = requeue
	telemetry.Error("amqp.delivery_failed", fields)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		fields["error"] = nackErr.Error()
		telemetry.Error("amqp.nack_failed", fields)
	}
}

// Close releases the channel and connection.
func (c *AMQPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ Client = (*AMQPClient)(nil)
