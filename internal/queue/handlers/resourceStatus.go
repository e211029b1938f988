package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahirjain10/savana-gateway/internal/actinia"
	queueErrors "github.com/mahirjain10/savana-gateway/internal/queue/errors"
	"github.com/mahirjain10/savana-gateway/internal/queue/models"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// StatusScheduler queues status polls.
type StatusScheduler interface {
	EnqueueStatus(ctx context.Context, task types.ResourceStatusTask) error
	ScheduleStatus(ctx context.Context, task types.ResourceStatusTask, delay time.Duration) error
}

// StatusRecorder stores the last known status of a recorded submission.
type StatusRecorder interface {
	MarkStatus(ctx context.Context, resourceID string, status types.Status) error
}

// EventArchiver keeps a durable copy of terminal status events.
type EventArchiver interface {
	ArchiveEvent(ctx context.Context, event *types.StatusEvent) (string, error)
}

// ResourceStatusHandler runs one poll per task and reschedules the next one
// until the job is terminal or the attempt budget is spent.
type ResourceStatusHandler struct {
	poller    *relay.Poller
	scheduler StatusScheduler
	policy    relay.WaitPolicy
	recorder  StatusRecorder
	archiver  EventArchiver
	logger    logrus.FieldLogger
}

// NewResourceStatusHandler builds the handler. recorder and archiver may be nil.
func NewResourceStatusHandler(poller *relay.Poller, scheduler StatusScheduler, policy relay.WaitPolicy, recorder StatusRecorder, archiver EventArchiver, logger logrus.FieldLogger) *ResourceStatusHandler {
	return &ResourceStatusHandler{
		poller:    poller,
		scheduler: scheduler,
		policy:    policy,
		recorder:  recorder,
		archiver:  archiver,
		logger:    logger,
	}
}

func (h *ResourceStatusHandler) Handle(ctx context.Context, task types.ResourceStatusTask) error {
	if task.UserID == "" || task.ResourceID == "" {
		return models.Drop(fmt.Errorf("%s: resource status task without job handle", queueErrors.ErrBadTask))
	}
	req := relay.PollRequest{Handle: task.Handle(), Kind: task.Kind, ModelID: task.ModelID}
	entry := h.logger.WithFields(logrus.Fields{
		"resource_id": task.ResourceID,
		"user_id":     task.UserID,
		"attempt":     task.Attempt,
	})

	event, err := h.poller.Poll(ctx, req)
	switch {
	case errors.Is(err, relay.ErrRevoked):
		return nil

	case err != nil:
		if actinia.IsRetryable(err) && !h.policy.Exhausted(task.Attempt+1) {
			entry.WithError(err).Warn("status poll failed, rescheduling")
			return h.reschedule(ctx, task)
		}
		msg := queueErrors.ErrStatus
		if actinia.IsRetryable(err) {
			msg = queueErrors.ErrPollBudget
		}
		h.finish(ctx, h.poller.Fail(ctx, req, errors.New(msg)))
		return models.Drop(fmt.Errorf("poll %s: %w", task.ResourceID, err))

	case !event.Status.Terminal():
		if h.policy.Exhausted(task.Attempt + 1) {
			h.finish(ctx, h.poller.Fail(ctx, req, errors.New(queueErrors.ErrPollBudget)))
			return models.Drop(fmt.Errorf("%w: %s after %d polls", relay.ErrPollTimeout, task.ResourceID, task.Attempt+1))
		}
		return h.reschedule(ctx, task)

	default:
		entry.WithField("status", event.Status).Info("job reached terminal status")
		h.finish(ctx, event)
		return nil
	}
}

func (h *ResourceStatusHandler) reschedule(ctx context.Context, task types.ResourceStatusTask) error {
	delay := h.policy.Delay(task.Attempt)
	task.Attempt++
	if err := h.scheduler.ScheduleStatus(ctx, task, delay); err != nil {
		return models.Retry(fmt.Errorf("reschedule poll %s: %w", task.ResourceID, err))
	}
	return nil
}

func (h *ResourceStatusHandler) finish(ctx context.Context, event *types.StatusEvent) {
	entry := h.logger.WithField("resource_id", event.Handle.ResourceID)
	if h.recorder != nil {
		if err := h.recorder.MarkStatus(ctx, event.Handle.ResourceID, event.Status); err != nil {
			entry.WithError(err).Warn("could not record final status")
		}
	}
	if h.archiver != nil {
		key, err := h.archiver.ArchiveEvent(ctx, event)
		if err != nil {
			entry.WithError(err).Warn("could not archive final status")
			return
		}
		entry.WithField("key", key).Debug("final status archived")
	}
}
