package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mahirjain10/savana-gateway/config"
	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/aws"
	"github.com/mahirjain10/savana-gateway/internal/hub"
	"github.com/mahirjain10/savana-gateway/internal/processchain"
	"github.com/mahirjain10/savana-gateway/internal/queue"
	"github.com/mahirjain10/savana-gateway/internal/queue/handlers"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/repository"
	"github.com/mahirjain10/savana-gateway/internal/server"
	"github.com/mahirjain10/savana-gateway/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type App struct {
	config       *config.Config
	logger       *logrus.Logger
	rabbitMqConn *amqp.Connection
	publisher    *queue.Publisher
	engine       *actinia.Client
	tasks        *queue.TaskPublisher
	poller       *relay.Poller
	policy       relay.WaitPolicy

	redis       *redis.Client
	revocations *store.Revocations
	locations   *store.LocationCache

	db        *sql.DB
	pool      *pgxpool.Pool
	drainRepo repository.DrainRequestRepository
	s3Service *aws.S3Service
}

// NewApp connects every configured backend. Redis, Postgres and S3 are only
// used when their settings are present.
func NewApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
		policy: relay.WaitPolicy{
			InitialInterval: cfg.PollInitialInterval,
			MaxInterval:     cfg.PollMaxInterval,
			MaxWait:         cfg.PollMaxWait,
			MaxAttempts:     cfg.PollMaxAttempts,
		},
	}

	engine, err := actinia.NewClient(actinia.Config{
		BaseURL:  cfg.ActiniaURL,
		User:     cfg.ActiniaUser,
		Password: cfg.ActiniaPassword,
		Timeout:  cfg.ActiniaTimeout,
	}, logger.WithField("component", "actinia"))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client: %w", err)
	}
	app.engine = engine

	conn, err := queue.NewRabbitMQClient(cfg.RabbitMqURL)
	if err != nil {
		return nil, err
	}
	app.rabbitMqConn = conn
	if err := queue.Declare(conn, cfg.RabbitMqQueues, cfg.StatusExchange); err != nil {
		app.Close()
		return nil, err
	}
	app.publisher = queue.NewPublisher(cfg.RabbitMqURL, conn, logger.WithField("component", "publisher"))
	app.tasks = queue.NewTaskPublisher(app.publisher)

	if cfg.RedisAddr != "" {
		rc, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = rc
		app.revocations = store.NewRevocations(rc)
		app.locations = store.NewLocationCache(rc)
	}

	if cfg.DbURL != "" {
		db, pool, err := repository.Open(ctx, repository.DefaultConfig(cfg.DbURL), logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.db, app.pool = db, pool
		app.drainRepo = repository.NewDrainRequestRepository(db, logger.WithField("component", "repository"))
		if err := app.drainRepo.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	if cfg.ArchiveEnabled() {
		awsConfig, err := config.InitializeAws(ctx)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.s3Service = aws.NewS3Service(aws.NewS3Client(awsConfig), cfg.AwsBucketName)
	}

	var revocations relay.Revocations
	if app.revocations != nil {
		revocations = app.revocations
	}
	statusPublisher := queue.NewStatusPublisher(app.publisher, cfg.StatusExchange)
	fanout := relay.NewFanout(statusPublisher, logger.WithField("component", "fanout"))
	app.poller = relay.NewPoller(engine, fanout, revocations, logger.WithField("component", "poller"))
	return app, nil
}

// Serve runs the HTTP gateway, the websocket hub and the status exchange
// subscriber that feeds it.
func (app *App) Serve(ctx context.Context) error {
	h := hub.New(app.logger.WithField("component", "hub"))
	go h.Run(ctx)

	subscriber := queue.NewStatusSubscriber(app.config.RabbitMqURL, app.config.StatusExchange, h.Broadcast, app.logger.WithField("component", "subscriber"))
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			app.logger.WithError(err).Error("status subscriber stopped")
		}
	}()

	deps := server.Deps{
		Engine:    app.engine,
		Builder:   processchain.NewBuilder(app.config.ActiniaPGSource),
		Location:  app.config.ActiniaLocation,
		Poller:    app.poller,
		Waiter:    relay.NewWaiter(app.poller, app.policy, app.logger.WithField("component", "waiter")),
		Scheduler: app.tasks,
		Hub:       h,
		Logger:    app.logger.WithField("component", "server"),
	}
	if app.revocations != nil {
		deps.Revoker = app.revocations
	}
	if app.locations != nil {
		deps.Cache = app.locations
	}
	if app.drainRepo != nil {
		deps.Recorder = app.drainRepo
	}
	if app.s3Service != nil {
		deps.Archiver = app.s3Service
	}
	return server.New(deps).Run(ctx, app.config.HTTPAddr)
}

// Work consumes the task queues until ctx is done.
func (app *App) Work(ctx context.Context) error {
	var recorder handlers.StatusRecorder
	if app.drainRepo != nil {
		recorder = app.drainRepo
	}
	var archiver handlers.EventArchiver
	if app.s3Service != nil {
		archiver = app.s3Service
	}

	statusHandler := handlers.NewResourceStatusHandler(app.poller, app.tasks, app.policy, recorder, archiver, app.logger.WithField("component", "resource_status"))
	ingestHandler := handlers.NewModelIngestHandler(app.engine, app.tasks, app.config.ModelTemplateID, app.logger.WithField("component", "model_ingest"))

	rabbitMqService := queue.NewRabbitMqService(app.rabbitMqConn, app.config, statusHandler, ingestHandler, app.logger.WithField("component", "worker"))
	return rabbitMqService.Start(ctx)
}

// Close releases every backend connection.
func (app *App) Close() {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.WithError(err).Warn("error closing publisher")
		}
	}
	if app.rabbitMqConn != nil && !app.rabbitMqConn.IsClosed() {
		if err := app.rabbitMqConn.Close(); err != nil {
			app.logger.WithError(err).Warn("error closing RabbitMQ connection")
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.WithError(err).Warn("error closing redis client")
		}
	}
	if app.db != nil || app.pool != nil {
		repository.Close(app.db, app.pool, app.logger)
	}
}
