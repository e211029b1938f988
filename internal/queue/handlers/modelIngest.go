package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/processchain"
	queueErrors "github.com/mahirjain10/savana-gateway/internal/queue/errors"
	"github.com/mahirjain10/savana-gateway/internal/queue/models"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// ModelEngine is the part of the engine client model setup needs.
type ModelEngine interface {
	Template(ctx context.Context, id string) (json.RawMessage, error)
	Submit(ctx context.Context, target types.Target, chain any) (*actinia.Submission, error)
}

// ModelIngestHandler submits the model setup chain for a model and queues
// the first status poll of the resulting job.
type ModelIngestHandler struct {
	engine     ModelEngine
	scheduler  StatusScheduler
	templateID string
	logger     logrus.FieldLogger
}

func NewModelIngestHandler(engine ModelEngine, scheduler StatusScheduler, templateID string, logger logrus.FieldLogger) *ModelIngestHandler {
	return &ModelIngestHandler{engine: engine, scheduler: scheduler, templateID: templateID, logger: logger}
}

func (h *ModelIngestHandler) Handle(ctx context.Context, task types.ModelIngestTask) error {
	if task.ModelID == "" || task.Location == "" || len(task.GeoIDs) == 0 {
		return models.Drop(fmt.Errorf("%s: model ingest needs model_id, location and geoids", queueErrors.ErrBadTask))
	}
	entry := h.logger.WithFields(logrus.Fields{"model_id": task.ModelID, "location": task.Location})

	template, err := h.engine.Template(ctx, h.templateID)
	if err != nil {
		if actinia.IsRetryable(err) {
			return models.Retry(fmt.Errorf("%s: %w", queueErrors.ErrTemplate, err))
		}
		return models.Drop(fmt.Errorf("%s: %w", queueErrors.ErrTemplate, err))
	}
	chain, err := processchain.SetTemplateValue(template, processchain.DefaultGeoIDParam, task.GeoIDs)
	if err != nil {
		return models.Drop(fmt.Errorf("%s: %w", queueErrors.ErrTemplate, err))
	}

	sub, err := h.engine.Submit(ctx, types.Target{Location: task.Location, Mapset: "PERMANENT"}, chain)
	if err != nil {
		return models.Drop(fmt.Errorf("%s: %w", queueErrors.ErrSubmit, err))
	}
	entry = entry.WithField("resource_id", sub.Handle.ResourceID)
	entry.Info("model setup chain submitted")

	poll := types.ResourceStatusTask{
		UserID:     sub.Handle.UserID,
		ResourceID: sub.Handle.ResourceID,
		Kind:       types.KindModelSetup,
		ModelID:    task.ModelID,
	}
	if err := h.scheduler.EnqueueStatus(ctx, poll); err != nil {
		entry.WithError(err).Error("model setup submitted but first poll could not be queued")
		return models.Drop(fmt.Errorf("enqueue poll for %s: %w", sub.Handle.ResourceID, err))
	}
	return nil
}
