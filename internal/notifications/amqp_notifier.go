package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes notices as persistent JSON messages on a durable
// queue through the default exchange.
type AMQPNotifier struct {
	mu    sync.Mutex
	pub   Publisher
	queue string

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(pub Publisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, queue: queue}
}

// DialAMQP connects, opens a channel and declares the notice queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %q: %w", queue, err)
	}

	n := NewAMQPNotifier(ch, queue)
	n.conn = conn
	n.ch = ch
	return n, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, notice Notice) error {
	if notice.OccurredAt.IsZero() {
		notice.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    notice.OccurredAt,
		Type:         string(notice.Kind),
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.pub.PublishWithContext(ctx, "", n.queue, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
