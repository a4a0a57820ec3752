// Package events emits connection lifecycle records to Kafka for
// downstream services (notifications, analytics).
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type ClientEvent struct {
	Type         string `json:"type"` // "client_connected" | "client_disconnected"
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id,omitempty"`
	ServerName   string `json:"server_name"`
	At           string `json:"at"`
}

type Producer struct {
	writer *kafkago.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

func (p *Producer) PublishClientEvent(ctx context.Context, ev ClientEvent) error {
	ev.At = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(ev.ConnectionID),
		Value: b,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
