package relay

import (
	"context"

	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// Publisher is a group-addressed message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, payload []byte) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, payload []byte) error {
	return f(ctx, topic, payload)
}

// Fanout delivers status events to the subscribers of their job topic.
// Delivery is best effort: bus failures are logged and never reach the
// caller.
type Fanout struct {
	publisher Publisher
	logger    logrus.FieldLogger
}

func NewFanout(publisher Publisher, logger logrus.FieldLogger) *Fanout {
	return &Fanout{publisher: publisher, logger: logger}
}

// Deliver publishes event to Topic(event.Handle.ResourceID) and returns the
// topic it addressed.
func (f *Fanout) Deliver(ctx context.Context, event *types.StatusEvent) string {
	topic := Topic(event.Handle.ResourceID)
	entry := f.logger.WithFields(logrus.Fields{
		"topic":       topic,
		"resource_id": event.Handle.ResourceID,
		"status":      event.Status,
		"kind":        event.Kind,
	})

	payload, err := Payload(event)
	if err != nil {
		entry.WithError(err).Error("cannot encode status event")
		return topic
	}
	if err := f.publisher.Publish(ctx, topic, payload); err != nil {
		entry.WithError(err).Warn("status event not delivered")
		return topic
	}
	entry.Debug("status event delivered")
	return topic
}
