package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
)

func (s *Server) registerPassthrough(api *gin.RouterGroup) {
	api.GET("/locations", s.handleLocations)
	api.POST("/locations/:location", s.forward(http.MethodPost, "locations", ":location"), s.invalidateLocations)
	api.DELETE("/locations/:location", s.forward(http.MethodDelete, "locations", ":location"), s.invalidateLocations)
	api.GET("/locations/:location/info", s.forwardSuffix(http.MethodGet, "/info", "locations", ":location"))

	mapset := []string{"locations", ":location", "mapsets", ":mapset"}
	api.GET("/locations/:location/mapsets", s.forward(http.MethodGet, "locations", ":location", "mapsets"))
	api.POST("/locations/:location/mapsets/:mapset", s.forward(http.MethodPost, mapset...))
	api.DELETE("/locations/:location/mapsets/:mapset", s.forward(http.MethodDelete, mapset...))
	api.GET("/locations/:location/mapsets/:mapset/info", s.forwardSuffix(http.MethodGet, "/info", mapset...))
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		api.Handle(method, "/locations/:location/mapsets/:mapset/lock", s.forwardSuffix(method, "/lock", mapset...))
	}

	api.GET("/locations/:location/mapsets/:mapset/raster_layers", s.forward(http.MethodGet, append(mapset, "raster_layers")...))
	api.GET("/locations/:location/mapsets/:mapset/raster_layers/:raster", s.forward(http.MethodGet, append(mapset, "raster_layers", ":raster")...))
	api.GET("/locations/:location/mapsets/:mapset/raster_layers/:raster/colors", s.forwardSuffix(http.MethodGet, "/colors", append(mapset, "raster_layers", ":raster")...))
	api.POST("/locations/:location/mapsets/:mapset/raster_layers/:raster/geotiff", s.handleGeoTIFF)
	api.GET("/locations/:location/mapsets/:mapset/vector_layers", s.forward(http.MethodGet, append(mapset, "vector_layers")...))
	api.GET("/locations/:location/mapsets/:mapset/vector_layers/:vector", s.forward(http.MethodGet, append(mapset, "vector_layers", ":vector")...))

	api.GET("/grass_modules", s.forward(http.MethodGet, "grass_modules"))
	api.GET("/grass_modules/:module", s.forward(http.MethodGet, "grass_modules", ":module"))
}

func (s *Server) forward(method string, segments ...string) gin.HandlerFunc {
	return s.forwardSuffix(method, "", segments...)
}

// forwardSuffix relays the request to the engine path built from segments,
// where ":name" segments are taken from the route parameters, and wraps the
// engine answer as {"response": ...} with the engine's status code.
func (s *Server) forwardSuffix(method, suffix string, segments ...string) gin.HandlerFunc {
	segments = append([]string(nil), segments...)
	return func(c *gin.Context) {
		parts := make([]string, len(segments))
		for i, seg := range segments {
			if len(seg) > 1 && seg[0] == ':' {
				parts[i] = c.Param(seg[1:])
			} else {
				parts[i] = seg
			}
		}

		var body any
		if method == http.MethodPost || method == http.MethodPut {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(err))
				return
			}
			if len(raw) > 0 {
				if !json.Valid(raw) {
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request body is not JSON"})
					return
				}
				body = json.RawMessage(raw)
			}
		}

		var query url.Values
		if c.Request.URL.RawQuery != "" {
			query = c.Request.URL.Query()
		}
		resp, err := s.Engine.Forward(c.Request.Context(), method, actinia.Path(parts...)+suffix, query, body)
		if err != nil {
			engineError(c, err)
			c.Abort()
			return
		}
		c.JSON(resp.StatusCode, gin.H{"response": responseValue(resp.Body)})
		if resp.StatusCode >= http.StatusBadRequest {
			c.Abort()
		}
	}
}

func responseValue(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func (s *Server) handleLocations(c *gin.Context) {
	ctx := c.Request.Context()
	if s.Cache != nil {
		body, hit, err := s.Cache.Get(ctx)
		if err != nil {
			s.Logger.WithError(err).Warn("location cache unavailable")
		}
		if hit {
			c.JSON(http.StatusOK, gin.H{"response": json.RawMessage(body)})
			return
		}
	}
	body, err := s.Engine.Locations(ctx)
	if err != nil {
		engineError(c, err)
		return
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, body); err != nil {
			s.Logger.WithError(err).Warn("location list not cached")
		}
	}
	c.JSON(http.StatusOK, gin.H{"response": body})
}

// invalidateLocations runs after a successful location change.
func (s *Server) invalidateLocations(c *gin.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(c.Request.Context()); err != nil {
		s.Logger.WithError(err).Warn("location cache not invalidated")
	}
}

// handleGeoTIFF starts an export and queues the status poll that reports its
// result to the job's subscribers.
func (s *Server) handleGeoTIFF(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.Engine.ExportGeoTIFF(ctx, c.Param("location"), c.Param("mapset"), c.Param("raster"))
	if err != nil {
		engineError(c, err)
		return
	}
	task := types.ResourceStatusTask{
		UserID:     sub.Handle.UserID,
		ResourceID: sub.Handle.ResourceID,
		Kind:       types.KindResourceMessage,
	}
	if err := s.Scheduler.EnqueueStatus(ctx, task); err != nil {
		s.Logger.WithError(err).WithField("resource_id", sub.Handle.ResourceID).Error("status poll not queued")
	}
	c.JSON(http.StatusOK, gin.H{
		"response": gin.H{
			"resourceId": sub.Handle.ResourceID,
			"status":     sub.Status,
		},
		"topic": relay.Topic(sub.Handle.ResourceID),
	})
}
