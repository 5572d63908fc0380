package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

type Client struct {
	conn            *amqp091.Connection
	channel         *amqp091.Channel
	exchangeName    string
	queueName       string
	deadLetterQueue string
}

type Option func(*Client)

// WithDeadLetterQueue declares name alongside the job queue and enables
// PublishDeadLetter.
func WithDeadLetterQueue(name string) Option {
	return func(c *Client) { c.deadLetterQueue = name }
}

func NewClient(url, exchangeName, queueName string, opts ...Option) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	for _, opt := range opts {
		opt(client)
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	queues := []string{c.queueName}
	if c.deadLetterQueue != "" {
		queues = append(queues, c.deadLetterQueue)
	}

	// Direct exchange, routing key equals queue name.
	for _, q := range queues {
		if _, err := c.channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := c.channel.QueueBind(q, q, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}

	return nil
}

// PublishJob enqueues a job for userID.
func (c *Client) PublishJob(ctx context.Context, jobType JobType, userID string) error {
	body, err := NewJobMessage(jobType, userID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	id, err := c.publish(ctx, c.queueName, body)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published job message",
		"message_id", id,
		"job_type", string(jobType),
		"user_id", userID,
		"queue", c.queueName)
	return nil
}

var ErrNoDeadLetterQueue = errors.New("dead-letter queue not configured")

// PublishDeadLetter parks a failed job on the dead-letter queue.
func (c *Client) PublishDeadLetter(ctx context.Context, dl DeadLetter) error {
	if c.deadLetterQueue == "" {
		return ErrNoDeadLetterQueue
	}

	body, err := dl.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if _, err := c.publish(ctx, c.deadLetterQueue, body); err != nil {
		return err
	}

	slog.WarnContext(ctx, "Job moved to dead-letter queue",
		"message_id", dl.MessageID,
		"queue", c.deadLetterQueue,
		"reason", dl.Reason)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	id := uuid.NewString()
	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    id,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// BatchHandler processes one batch. It must not return until every
// message has been handled; the batch is acknowledged afterwards. The
// context it receives is never cancelled.
type BatchHandler func(ctx context.Context, batch []Message)

// ConsumeBatches delivers messages to handler in batches of at most
// batchSize, waiting up to batchWait after the first message for the batch
// to fill. Each batch is acknowledged in full once the handler returns,
// whatever happened to its individual messages.
func (c *Client) ConsumeBatches(ctx context.Context, batchSize int, batchWait time.Duration, handler BatchHandler) error {
	if batchSize < 1 {
		batchSize = 1
	}

	if err := c.channel.Qos(batchSize, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming jobs",
		"queue", c.queueName,
		"batch_size", batchSize,
		"batch_wait", batchWait)

	for {
		batch, open := collectBatch(ctx, deliveries, batchSize, batchWait)

		// Unacked deliveries go back to the queue when the channel closes.
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err(), "unhandled", len(batch))
			return ctx.Err()
		}

		// A collected batch runs to completion even if shutdown starts now.
		if len(batch) > 0 {
			handler(context.WithoutCancel(ctx), toMessages(batch))

			if err := batch[len(batch)-1].Ack(true); err != nil {
				slog.ErrorContext(ctx, "Failed to acknowledge batch", "size", len(batch), "error", err)
			}
		}

		if !open {
			return fmt.Errorf("message channel closed")
		}
	}
}

// collectBatch blocks for the first delivery, then keeps reading until the
// batch is full or wait has elapsed. open is false once deliveries closes.
func collectBatch(ctx context.Context, deliveries <-chan amqp091.Delivery, size int, wait time.Duration) (batch []amqp091.Delivery, open bool) {
	select {
	case <-ctx.Done():
		return nil, true
	case d, ok := <-deliveries:
		if !ok {
			return nil, false
		}
		batch = append(batch, d)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for len(batch) < size {
		select {
		case <-ctx.Done():
			return batch, true
		case <-timer.C:
			return batch, true
		case d, ok := <-deliveries:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		}
	}
	return batch, true
}

func toMessages(batch []amqp091.Delivery) []Message {
	msgs := make([]Message, len(batch))
	for i, d := range batch {
		msgs[i] = Message{ID: d.MessageId, Body: d.Body}
	}
	return msgs
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
