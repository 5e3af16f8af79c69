package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testNotification() lmsauth.Notification {
	return lmsauth.Notification{
		User:       &lmsauth.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"},
		TokenValue: "signed-token",
		Purpose:    lmsauth.PurposeResetPassword,
	}
}

func TestLogNotifierHidesTokenByDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	if err := n.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["purpose"] != "reset_password" || fields["user_id"] != "u1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["token"]; ok {
		t.Fatal("token logged without IncludeToken")
	}

	n.IncludeToken = true
	_ = n.Notify(context.Background(), testNotification())
	if logs.All()[1].ContextMap()["token"] != "signed-token" {
		t.Fatal("token missing with IncludeToken")
	}
}

type fakeChannel struct {
	key    string
	msg    amqp.Publishing
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.key, f.msg = key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPNotifierPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	n := newAMQPNotifier(ch, "auth.notifications")
	n.now = func() time.Time { return fixedNow }

	if err := n.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if ch.key != "auth.notifications" || ch.msg.DeliveryMode != amqp.Persistent || ch.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing: key=%s %+v", ch.key, ch.msg)
	}

	var m Message
	if err := json.Unmarshal(ch.msg.Body, &m); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if m.UserID != "u1" || m.Token != "signed-token" || m.Purpose != lmsauth.PurposeResetPassword || !m.IssuedAt.Equal(fixedNow) {
		t.Fatalf("unexpected message: %+v", m)
	}

	ch.err = errors.New("channel closed")
	if err := n.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("expected publish error")
	}
	if err := n.Close(); err != nil || !ch.closed {
		t.Fatalf("close: %v", err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	n := newKafkaNotifier(w)

	notification := testNotification()
	notification.Purpose = lmsauth.PurposeEmailVerification
	if err := n.Notify(context.Background(), notification); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u1" || len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "email_verification" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	w.err = errors.New("leader not available")
	if err := n.Notify(context.Background(), notification); err == nil {
		t.Fatal("expected write error")
	}
}
