package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	archive "github.com/mahirjain10/savana-gateway/internal/aws"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
)

func eventBody(event *types.StatusEvent) gin.H {
	body := gin.H{"topic": relay.Topic(event.Handle.ResourceID)}
	if payload, err := relay.Payload(event); err == nil {
		body["response"] = json.RawMessage(payload)
	}
	return body
}

// handleResourceStatus polls a job once, or until it is terminal when
// wait=true. Every poll is also fanned out to the job's subscribers.
func (s *Server) handleResourceStatus(c *gin.Context) {
	req := relay.PollRequest{
		Handle: types.JobHandle{UserID: c.Param("user_id"), ResourceID: c.Param("resource_id")},
		Kind:   types.KindResourceMessage,
	}

	var event *types.StatusEvent
	var err error
	if c.Query("wait") == "true" {
		event, err = s.Waiter.Wait(c.Request.Context(), req)
	} else {
		event, err = s.Poller.Poll(c.Request.Context(), req)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, eventBody(event))
	case errors.Is(err, relay.ErrRevoked):
		c.JSON(http.StatusGone, errorBody(err))
	case errors.Is(err, relay.ErrPollTimeout):
		body := gin.H{"error": err.Error()}
		if event != nil {
			for k, v := range eventBody(event) {
				body[k] = v
			}
		}
		c.JSON(http.StatusGatewayTimeout, body)
	default:
		engineError(c, err)
	}
}

func (s *Server) handleResourceArchive(c *gin.Context) {
	if s.Archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archiving is not enabled"})
		return
	}
	url, err := s.Archiver.PresignEvent(c.Request.Context(), c.Param("resource_id"))
	if errors.Is(err, archive.ErrNotArchived) {
		c.JSON(http.StatusNotFound, errorBody(err))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// handleRevoke stops further polling of a job. The engine job itself keeps
// running.
func (s *Server) handleRevoke(c *gin.Context) {
	if s.Revoker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "revocation is not enabled"})
		return
	}
	resourceID := c.Param("resource_id")
	if err := s.Revoker.Revoke(c.Request.Context(), resourceID); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	s.Logger.WithField("resource_id", resourceID).Info("job handle revoked")
	c.JSON(http.StatusAccepted, gin.H{"resource_id": resourceID, "revoked": true})
}
