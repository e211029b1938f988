package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DelaySuffix names the holding queue that feeds delayed tasks back into a
// work queue once their per-message TTL expires.
const DelaySuffix = ".delay"

func NewRabbitMQClient(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func NewChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("failed to open channel: connection is closed")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

func NewQueue(ch *amqp.Channel, queueName string) (*amqp.Queue, error) {
	queue, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &queue, nil
}

// NewDelayQueue declares the holding queue for queueName. Messages published
// there with an Expiration are dead-lettered into queueName when it elapses.
func NewDelayQueue(ch *amqp.Channel, queueName string) (*amqp.Queue, error) {
	queue, err := ch.QueueDeclare(
		queueName+DelaySuffix,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queueName,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare delay queue for %s: %w", queueName, err)
	}
	return &queue, nil
}

// NewStatusExchange declares the topic exchange status events are published to.
func NewStatusExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("error while declaring exchange %s: %w", exchange, err)
	}
	return nil
}

func NewQueueConsumer(ch *amqp.Channel, queueName string, prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set qos on %s: %w", queueName, err)
		}
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", queueName, err)
	}
	return msgs, nil
}
