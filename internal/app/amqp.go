package app

import (
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"tripdispatch/internal/config"
)

// NewAMQPChannel dials RabbitMQ, retrying while the broker starts up, and
// opens a channel for publishing notifications.
func NewAMQPChannel(cfg config.AMQPConfig) (*amqp091.Connection, *amqp091.Channel, error) {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var conn *amqp091.Connection
		conn, err = amqp091.Dial(cfg.URL)
		if err == nil {
			var ch *amqp091.Channel
			ch, err = conn.Channel()
			if err == nil {
				return conn, ch, nil
			}
			_ = conn.Close()
		}

		log.Printf("RabbitMQ not ready, retrying... (%d/%d)", i+1, attempts)
		if i < attempts-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}

	return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
}
