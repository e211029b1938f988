package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mahirjain10/savana-gateway/internal/processchain"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/repository"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// DrainBody is one drain request. Extent corners are lon,lat pairs.
type DrainBody struct {
	Point  string    `json:"point" validate:"required"`
	Extent []float64 `json:"extent" validate:"required,len=4"`
	HUC12  string    `json:"huc12" validate:"required,len=12,numeric"`
}

// decodeDrainBody accepts a list of requests, of which the first is used, or
// a single object.
func decodeDrainBody(raw []byte) (DrainBody, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []DrainBody
		if err := json.Unmarshal(raw, &list); err != nil {
			return DrainBody{}, err
		}
		if len(list) == 0 {
			return DrainBody{}, errors.New("request list is empty")
		}
		return list[0], nil
	}
	var body DrainBody
	err := json.Unmarshal(raw, &body)
	return body, err
}

func (s *Server) handleDrain(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	body, err := decodeDrainBody(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	extent := [4]float64{body.Extent[0], body.Extent[1], body.Extent[2], body.Extent[3]}

	in, err := processchain.NewDrainInput(body.Point, extent, body.HUC12)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	chain, err := s.Builder.BuildDrain(in)
	if err != nil {
		var verr *processchain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, errorBody(err))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}

	sub, err := s.Engine.Submit(ctx, types.Target{Location: s.Location}, chain)
	if err != nil {
		engineError(c, err)
		return
	}
	entry := s.Logger.WithFields(logrus.Fields{"resource_id": sub.Handle.ResourceID, "huc12": in.HUC12})
	entry.Info("drain chain submitted")

	req := types.DrainRequest{
		ID:         uuid.NewString(),
		HUC12:      in.HUC12,
		Lon:        in.Point.Lon,
		Lat:        in.Point.Lat,
		Extent:     extent,
		UserID:     sub.Handle.UserID,
		ResourceID: sub.Handle.ResourceID,
		Status:     sub.Status,
		CreatedAt:  time.Now().UTC(),
	}
	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, req); err != nil {
			entry.WithError(err).Warn("drain request not recorded")
		}
	}
	if s.Archiver != nil {
		if _, err := s.Archiver.ArchiveChain(ctx, sub.Handle.ResourceID, chain); err != nil {
			entry.WithError(err).Warn("drain chain not archived")
		}
	}
	task := types.ResourceStatusTask{
		UserID:     sub.Handle.UserID,
		ResourceID: sub.Handle.ResourceID,
		Kind:       types.KindResourceMessage,
	}
	if err := s.Scheduler.EnqueueStatus(ctx, task); err != nil {
		entry.WithError(err).Error("status poll not queued")
	}

	c.JSON(http.StatusCreated, gin.H{
		"savana_response": gin.H{
			"id":     req.ID,
			"point":  body.Point,
			"extent": extent,
			"huc12":  in.HUC12,
		},
		"response": gin.H{
			"user_id":     sub.Handle.UserID,
			"resource_id": sub.Handle.ResourceID,
			"status":      sub.Status,
		},
		"topic": relay.Topic(sub.Handle.ResourceID),
	})
}

func (s *Server) handleDrainRecord(c *gin.Context) {
	if s.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission recording is not enabled"})
		return
	}
	req, err := s.Recorder.GetByResource(c.Request.Context(), c.Param("resource_id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody(err))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": req})
}
