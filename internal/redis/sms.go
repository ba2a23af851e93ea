package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const smsOutboundKey = "sms:outbound"

// SMSMessage is the payload an SMS gateway worker pops from the outbound queue.
type SMSMessage struct {
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SMSQueue hands OTP messages to the SMS gateway through a Redis list.
type SMSQueue struct {
	client *redis.Client
}

// NewSMSQueue creates a new SMSQueue.
func NewSMSQueue(client *redis.Client) *SMSQueue {
	return &SMSQueue{client: client}
}

// SendOTP enqueues a one-time code for delivery to the destination phone.
func (q *SMSQueue) SendOTP(ctx context.Context, destination, code string) error {
	data, err := json.Marshal(SMSMessage{
		To:        destination,
		Body:      fmt.Sprintf("Your trip verification code is %s. Share it with your driver only.", code),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return q.client.LPush(ctx, smsOutboundKey, data).Err()
}
