package notification

import (
	"context"
	"encoding/json"
	"fmt"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	exchangeName = "notification-events"
	queueName    = "notification-delivery"
)

// Broker publishes and consumes Events over AMQP. The API publishes fire-and-
// forget; the notifier worker consumes with explicit acks
type Broker struct {
	logger     *zap.Logger
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewBroker connects to the AMQP endpoint and declares the event exchange
func NewBroker(logger *zap.Logger, uri string) (*Broker, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	connection, err := amqp.Dial(uri)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to message broker")
	}
	channel, err := connection.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open channel to message broker")
	}
	if err := channel.ExchangeDeclare(
		exchangeName,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange")
	}
	return &Broker{
		logger:     logger,
		connection: connection,
		channel:    channel,
	}, nil
}

// Close tears down the channel and connection
func (b *Broker) Close() {
	b.channel.Close()
	b.connection.Close()
}

// Publish sends one event to the exchange as JSON
func (b *Broker) Publish(_ context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode event")
	}
	if err := b.channel.Publish(
		exchangeName,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish event")
	}
	return nil
}

// Receive binds a durable queue to the exchange and streams decoded events.
// The channel closes when ctx is cancelled or the broker connection drops
func (b *Broker) Receive(ctx context.Context) (<-chan Event, error) {
	queue, err := b.channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare queue")
	}
	if err := b.channel.QueueBind(
		queue.Name,
		"",
		exchangeName,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot bind queue")
	}
	deliveries, err := b.channel.Consume(
		queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot consume from queue")
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					b.logger.Error("Dropping undecodable event",
						zap.Error(err),
					)
					delivery.Ack(false)
					continue
				}
				delivery.Ack(false)
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
