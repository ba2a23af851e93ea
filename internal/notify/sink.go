// Package notify delivers dispatch notifications to real-time transports.
package notify

import (
	"context"
	"errors"
	"log"
)

// Sink publishes a serialized notification on a topic. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Fanout publishes to every sink and reports the joined failures.
type Fanout []Sink

// Publish delivers the payload to all sinks, continuing past failures.
func (f Fanout) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the process log.
type LogSink struct{}

// Publish logs the notification.
func (LogSink) Publish(_ context.Context, topic string, payload []byte) error {
	log.Printf("[NOTIFICATION] Topic=%s, Payload=%s", topic, payload)
	return nil
}

// Ensure sinks implement Sink.
var (
	_ Sink = Fanout(nil)
	_ Sink = LogSink{}
	_ Sink = (*RedisSink)(nil)
	_ Sink = (*AMQPSink)(nil)
	_ Sink = (*Hub)(nil)
)
