package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mahirjain10/savana-gateway/internal/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Publisher owns one publishing channel, reopened on demand. Channels are not
// safe for concurrent publishing, so publishes are serialised.
type Publisher struct {
	url    string
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger logrus.FieldLogger
}

// NewPublisher publishes over conn and redials url when it drops.
func NewPublisher(url string, conn *amqp.Connection, logger logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, conn: conn, logger: logger}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := NewRabbitMQClient(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := NewChannel(p.conn)
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg.ContentType = "application/json"
	if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %q/%q: %w", exchange, key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && err != amqp.ErrClosed {
			return err
		}
		p.ch = nil
	}
	return nil
}

// StatusPublisher publishes fanned-out status events to the status exchange,
// routed by job topic.
type StatusPublisher struct {
	pub      *Publisher
	exchange string
}

func NewStatusPublisher(pub *Publisher, exchange string) *StatusPublisher {
	return &StatusPublisher{pub: pub, exchange: exchange}
}

func (s *StatusPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.pub.publish(ctx, s.exchange, topic, amqp.Publishing{
		Body:      payload,
		Timestamp: time.Now(),
	})
}

// TaskPublisher enqueues tasks on the work queues.
type TaskPublisher struct {
	pub *Publisher
}

func NewTaskPublisher(pub *Publisher) *TaskPublisher {
	return &TaskPublisher{pub: pub}
}

// Envelope wraps a task in the queue message format.
func Envelope(pattern string, task any) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s task: %w", pattern, err)
	}
	return json.Marshal(types.RabbitMQMessage{
		Pattern:   pattern,
		Data:      data,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (t *TaskPublisher) enqueue(ctx context.Context, queueName, pattern string, task any, expiration string) error {
	body, err := Envelope(pattern, task)
	if err != nil {
		return err
	}
	return t.pub.publish(ctx, "", queueName, amqp.Publishing{
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Expiration:   expiration,
	})
}

func (t *TaskPublisher) EnqueueStatus(ctx context.Context, task types.ResourceStatusTask) error {
	return t.enqueue(ctx, types.PatternResourceStatus, types.PatternResourceStatus, task, "")
}

// ScheduleStatus enqueues task to run after delay via the delay queue.
func (t *TaskPublisher) ScheduleStatus(ctx context.Context, task types.ResourceStatusTask, delay time.Duration) error {
	if delay <= 0 {
		return t.EnqueueStatus(ctx, task)
	}
	return t.enqueue(ctx, types.PatternResourceStatus+DelaySuffix, types.PatternResourceStatus, task, Expiration(delay))
}

func (t *TaskPublisher) EnqueueIngest(ctx context.Context, task types.ModelIngestTask) error {
	return t.enqueue(ctx, types.PatternModelIngest, types.PatternModelIngest, task, "")
}

// Expiration formats a per-message TTL, in whole milliseconds of at least one.
func Expiration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
