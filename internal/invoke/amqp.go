package invoke

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "depprune_jobs"

// AMQP publishes job messages to a durable RabbitMQ queue and consumes them
// in the worker.
type AMQP struct {
	conn  *amqp091.Connection
	queue string

	mu sync.Mutex
	ch *amqp091.Channel
}

// DialAMQP connects to url and declares the queue.
func DialAMQP(url, queue string) (*AMQP, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQP{conn: conn, queue: queue, ch: ch}, nil
}

func declare(ch *amqp091.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	return nil
}

func (a *AMQP) Invoke(ctx context.Context, jobID string) error {
	body, err := EncodeMessage(jobID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.ch.PublishWithContext(ctx,
		"",
		a.queue,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publishing job %s: %w", jobID, err)
	}
	return nil
}

// Consume delivers one message at a time to handle until ctx is done or the
// connection closes. Messages are acked after handle returns; undecodable
// messages are rejected without requeue.
func (a *AMQP) Consume(ctx context.Context, handle HandlerFunc, logger *log.Logger) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}
	msgs, err := ch.Consume(
		a.queue,
		"depprune_worker",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", a.queue, err)
	}

	logger.Info("Listening for jobs", "queue", a.queue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping consumer", "queue", a.queue)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			jobID, err := DecodeMessage(msg.Body)
			if err != nil {
				logger.Error("Dropping message", "err", err)
				if err := msg.Nack(false, false); err != nil {
					logger.Error("Failed to nack message", "err", err)
				}
				continue
			}

			start := time.Now()
			handle(ctx, jobID)
			if err := msg.Ack(false); err != nil {
				logger.Error("Failed to ack message", "job_id", jobID, "err", err)
			}
			logger.Debug("Message processed", "job_id", jobID, "duration", time.Since(start))
		}
	}
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		_ = a.ch.Close()
	}
	return a.conn.Close()
}
