package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"genstudio/internal/infra"
)

// AMQPPublisher publishes events to a topic exchange with routing key job.<type>.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	logger   infra.Logger
}

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string, logger infra.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Publish sends evt. Failures are logged and dropped.
func (p *AMQPPublisher) Publish(ctx context.Context, evt JobEvent) {
	msg, err := buildPublishing(evt)
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", evt.JobID).Msg("events: encode failed")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(evt.Type), false, false, msg); err != nil {
		p.logger.Warn().Err(err).Str("job_id", evt.JobID).Str("type", string(evt.Type)).Msg("events: amqp publish failed")
	}
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil && !p.conn.IsClosed() {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// RoutingKey returns the topic routing key of an event type.
func RoutingKey(t Type) string {
	return "job." + string(t)
}

func buildPublishing(evt JobEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    evt.At,
		Type:         string(evt.Type),
		Body:         body,
	}, nil
}
