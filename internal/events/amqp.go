package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the subset of *amqp.Channel the forwarder uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder pushes bus events to a durable RabbitMQ queue for the notification service.
type AMQPForwarder struct {
	queue   string
	timeout time.Duration
	logger  zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   amqpChannel
}

// DialAMQP connects to the broker and declares queue.
func DialAMQP(url, queue string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	f := newForwarder(ch, queue, logger)
	f.conn = conn
	return f, nil
}

func newForwarder(ch amqpChannel, queue string, logger *zerolog.Logger) *AMQPForwarder {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "amqp_forwarder").Str("queue", queue).Logger()
	}
	return &AMQPForwarder{queue: queue, timeout: 5 * time.Second, logger: l, ch: ch}
}

// Attach subscribes the forwarder to every scheduler event on bus.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

// Handle publishes one event as a persistent JSON message.
func (f *AMQPForwarder) Handle(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return fmt.Errorf("amqp forwarder closed")
	}
	err = f.ch.PublishWithContext(ctx,
		"",      // default exchange
		f.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         ev.Type,
			Timestamp:    ev.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	f.logger.Debug().Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("event forwarded")
	return nil
}

// Close releases the channel and connection.
func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		_ = f.ch.Close()
		f.ch = nil
	}
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}
