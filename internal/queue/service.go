package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mahirjain10/savana-gateway/config"
	"github.com/mahirjain10/savana-gateway/internal/queue/models"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/mahirjain10/savana-gateway/internal/utils"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// StatusTaskHandler runs resource status tasks.
type StatusTaskHandler interface {
	Handle(ctx context.Context, task types.ResourceStatusTask) error
}

// IngestTaskHandler runs model ingest tasks.
type IngestTaskHandler interface {
	Handle(ctx context.Context, task types.ModelIngestTask) error
}

type RabbitMqService struct {
	config        *config.Config
	connMu        sync.Mutex
	rabbitMqConn  *amqp.Connection
	statusHandler StatusTaskHandler
	ingestHandler IngestTaskHandler
	logger        logrus.FieldLogger
}

func NewRabbitMqService(rabbitMqConn *amqp.Connection, config *config.Config, statusHandler StatusTaskHandler, ingestHandler IngestTaskHandler, logger logrus.FieldLogger) *RabbitMqService {
	return &RabbitMqService{
		rabbitMqConn:  rabbitMqConn,
		config:        config,
		statusHandler: statusHandler,
		ingestHandler: ingestHandler,
		logger:        logger,
	}
}

// Declare sets up the work queues, the delay queue for status polls and the
// status exchange.
func Declare(conn *amqp.Connection, queues []string, exchange string) error {
	ch, err := NewChannel(conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, queueName := range queues {
		if _, err := NewQueue(ch, queueName); err != nil {
			return err
		}
	}
	if _, err := NewQueue(ch, types.PatternResourceStatus); err != nil {
		return err
	}
	if _, err := NewDelayQueue(ch, types.PatternResourceStatus); err != nil {
		return err
	}
	return NewStatusExchange(ch, exchange)
}

func (rabbitMqService *RabbitMqService) connection() (*amqp.Connection, error) {
	rabbitMqService.connMu.Lock()
	defer rabbitMqService.connMu.Unlock()
	if rabbitMqService.rabbitMqConn != nil && !rabbitMqService.rabbitMqConn.IsClosed() {
		return rabbitMqService.rabbitMqConn, nil
	}
	conn, err := NewRabbitMQClient(rabbitMqService.config.RabbitMqURL)
	if err != nil {
		return nil, err
	}
	rabbitMqService.rabbitMqConn = conn
	return conn, nil
}

// ProcessMessage decodes one delivery and runs the task it carries.
func (rabbitMqService *RabbitMqService) ProcessMessage(ctx context.Context, d amqp.Delivery) error {
	var message types.RabbitMQMessage
	if err := utils.ParseJSON(d.Body, &message); err != nil {
		return models.Drop(fmt.Errorf("failed to parse message: %w", err))
	}
	entry := rabbitMqService.logger.WithFields(logrus.Fields{"pattern": message.Pattern, "queue": d.RoutingKey})
	if message.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, message.CreatedAt); err == nil {
			entry = entry.WithField("queued_for", time.Since(created).Round(time.Millisecond))
		}
	}
	entry.Debug("received task")

	switch message.Pattern {
	case types.PatternResourceStatus:
		var task types.ResourceStatusTask
		if err := utils.ParseJSON(message.Data, &task); err != nil {
			return models.Drop(fmt.Errorf("failed to parse %s task: %w", message.Pattern, err))
		}
		if task.Kind == "" {
			task.Kind = types.KindResourceMessage
		}
		if !task.Kind.Valid() {
			return models.Drop(fmt.Errorf("unknown message kind %q", task.Kind))
		}
		return rabbitMqService.statusHandler.Handle(ctx, task)

	case types.PatternModelIngest:
		if rabbitMqService.ingestHandler == nil {
			return models.Drop(errors.New("model ingest is not enabled on this worker"))
		}
		var task types.ModelIngestTask
		if err := utils.ParseJSON(message.Data, &task); err != nil {
			return models.Drop(fmt.Errorf("failed to parse %s task: %w", message.Pattern, err))
		}
		return rabbitMqService.ingestHandler.Handle(ctx, task)

	default:
		return models.Drop(fmt.Errorf("unsupported pattern: %q", message.Pattern))
	}
}

// Settle acks or nacks d according to the outcome of processing it.
func Settle(d amqp.Delivery, err error) error {
	if err == nil {
		return d.Ack(false)
	}
	var procErr models.ProcessingError
	if errors.As(err, &procErr) {
		return d.Nack(false, procErr.Requeue)
	}
	return d.Nack(false, utils.IsTransientError(err))
}

// Start runs the consumers of every configured queue until ctx is done.
func (rabbitMqService *RabbitMqService) Start(ctx context.Context) error {
	conn, err := rabbitMqService.connection()
	if err != nil {
		return err
	}
	if err := Declare(conn, rabbitMqService.config.RabbitMqQueues, rabbitMqService.config.StatusExchange); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, queueName := range rabbitMqService.config.RabbitMqQueues {
		count := config.WorkerCount(queueName)
		for i := range count {
			wg.Add(1)
			rabbitMqService.logger.WithField("queue", queueName).Infof("started worker no %d", i+1)
			go func(queueName string) {
				defer wg.Done()
				rabbitMqService.consume(ctx, queueName)
			}(queueName)
		}
	}

	<-ctx.Done()
	rabbitMqService.logger.Info("Shutting down all consumers gracefully...")
	wg.Wait()
	return nil
}

func (rabbitMqService *RabbitMqService) consume(ctx context.Context, queueName string) {
	logger := rabbitMqService.logger.WithField("queue", queueName)
	var consumerCh *amqp.Channel
	defer func() {
		if consumerCh != nil {
			consumerCh.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down...")
			return
		default:
		}

		if consumerCh == nil || consumerCh.IsClosed() {
			conn, err := rabbitMqService.connection()
			if err != nil {
				logger.WithError(err).Warn("failed to connect to RabbitMQ")
				sleep(ctx, 5*time.Second)
				continue
			}
			newCh, err := NewChannel(conn)
			if err != nil {
				logger.WithError(err).Warn("Failed to create channel")
				sleep(ctx, 5*time.Second)
				continue
			}
			consumerCh = newCh
			logger.Debug("Channel created")
		}

		msgs, err := NewQueueConsumer(consumerCh, queueName, 1)
		if err != nil {
			logger.WithError(err).Warn("Failed to start consumer")
			consumerCh.Close()
			consumerCh = nil
			sleep(ctx, 5*time.Second)
			continue
		}
		logger.Info("Worker started, waiting for messages...")

		channelClosed := false
		for !channelClosed {
			select {
			case <-ctx.Done():
				logger.Info("Shutting down...")
				return
			case d, ok := <-msgs:
				if !ok {
					logger.Warn("Channel closed, will recreate")
					consumerCh = nil
					channelClosed = true
					sleep(ctx, 2*time.Second)
					break
				}
				err := rabbitMqService.ProcessMessage(ctx, d)
				if err != nil {
					logger.WithError(err).Warn("Error processing message")
				}
				if ackErr := Settle(d, err); ackErr != nil {
					logger.WithError(ackErr).Warn("failed to settle delivery")
					if utils.IsFatalError(ackErr) {
						consumerCh.Close()
						consumerCh = nil
						channelClosed = true
					}
				}
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
