package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink receives status events consumed from the status exchange.
type Sink func(topic string, payload []byte)

// StatusSubscriber binds a private queue to every topic of the status
// exchange and forwards what arrives to a Sink. Each gateway replica runs
// one, so events published by any worker reach the websockets held here.
type StatusSubscriber struct {
	url      string
	exchange string
	sink     Sink
	logger   logrus.FieldLogger
}

func NewStatusSubscriber(url, exchange string, sink Sink, logger logrus.FieldLogger) *StatusSubscriber {
	return &StatusSubscriber{url: url, exchange: exchange, sink: sink, logger: logger}
}

// Run consumes until ctx is done, reconnecting when the broker goes away.
func (s *StatusSubscriber) Run(ctx context.Context) error {
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.WithError(err).Warn("status subscription lost, reconnecting")
		sleep(ctx, 5*time.Second)
	}
}

func (s *StatusSubscriber) consume(ctx context.Context) error {
	conn, err := NewRabbitMQClient(s.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := NewChannel(conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := NewStatusExchange(ch, s.exchange); err != nil {
		return err
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare subscriber queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "#", s.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", queue.Name, s.exchange, err)
	}
	msgs, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue.Name, err)
	}
	s.logger.WithFields(logrus.Fields{"exchange": s.exchange, "queue": queue.Name}).Info("subscribed to status events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscriber channel closed")
			}
			s.sink(d.RoutingKey, d.Body)
		}
	}
}
