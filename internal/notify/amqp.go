package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes notifications to a RabbitMQ topic exchange, using the
// notification topic as routing key.
type AMQPSink struct {
	ch       *amqp091.Channel
	exchange string
}

// NewAMQPSink declares the exchange and returns a sink publishing to it.
func NewAMQPSink(ch *amqp091.Channel, exchange string) (*AMQPSink, error) {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

// Publish sends a persistent JSON message.
func (s *AMQPSink) Publish(ctx context.Context, topic string, payload []byte) error {
	err := s.ch.PublishWithContext(ctx,
		s.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
