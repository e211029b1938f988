package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mahirjain10/savana-gateway/internal/types"
)

// ModelSetupBody starts the model setup chain for the given region ids.
// Location defaults to the gateway's engine location.
type ModelSetupBody struct {
	Location string   `json:"location"`
	GeoIDs   []string `json:"geoids" validate:"required,min=1,dive,required,numeric"`
}

func (s *Server) handleModelSetup(c *gin.Context) {
	var body ModelSetupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	if body.Location == "" {
		body.Location = s.Location
	}
	task := types.ModelIngestTask{
		ModelID:  c.Param("model_id"),
		Location: body.Location,
		GeoIDs:   body.GeoIDs,
	}
	if err := s.Scheduler.EnqueueIngest(c.Request.Context(), task); err != nil {
		s.Logger.WithError(err).WithField("model_id", task.ModelID).Error("model setup not queued")
		c.JSON(http.StatusServiceUnavailable, errorBody(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"response": gin.H{
		"model_id": task.ModelID,
		"location": task.Location,
		"status":   "queued",
	}})
}
