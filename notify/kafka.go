package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications to a topic keyed by user id, so all
// messages for one user land on one partition.
type KafkaNotifier struct {
	w   messageWriter
	now func() time.Time
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return newKafkaNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	})
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{w: w, now: func() time.Time { return time.Now().UTC() }}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n lmsauth.Notification) error {
	now := k.now()
	m := newMessage(n, now)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.UserID),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "purpose", Value: []byte(n.Purpose)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.w.Close()
}
