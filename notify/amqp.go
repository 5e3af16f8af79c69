package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications as persistent JSON messages to a
// durable queue on the default exchange.
type AMQPNotifier struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch amqpPublisher

	now func() time.Time
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare %s: %w", queue, err)
	}
	n := newAMQPNotifier(ch, queue)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch amqpPublisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{
		ch:    ch,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (a *AMQPNotifier) Notify(ctx context.Context, n lmsauth.Notification) error {
	now := a.now()
	body, err := json.Marshal(newMessage(n, now))
	if err != nil {
		return fmt.Errorf("amqp: marshal: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         string(n.Purpose),
		Body:         body,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.PublishWithContext(ctx, "", a.queue, false, false, pub); err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
