package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// QueueSender hands SMS messages to the gateway worker through a Redis channel.
type QueueSender struct {
	pub     Publisher
	channel string
}

func NewQueueSender(pub Publisher, channel string) *QueueSender {
	if channel == "" {
		channel = "sms:outbox"
	}
	return &QueueSender{pub: pub, channel: channel}
}

func (q *QueueSender) Name() string { return "sms-queue" }

type smsEnvelope struct {
	Phone string            `json:"phone"`
	Kind  Kind              `json:"kind"`
	Text  string            `json:"text"`
	Vars  map[string]string `json:"vars,omitempty"`
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return ErrNoRecipient
	}
	data, err := json.Marshal(smsEnvelope{Phone: msg.Phone, Kind: msg.Kind, Text: Text(msg), Vars: msg.Vars})
	if err != nil {
		return err
	}
	receivers, err := q.pub.Publish(ctx, q.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	if receivers == 0 {
		return fmt.Errorf("no sms worker listening on %s", q.channel)
	}
	return nil
}
