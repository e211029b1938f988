// Package server is the HTTP gateway in front of the processing engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/hub"
	"github.com/mahirjain10/savana-gateway/internal/processchain"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// Engine is the part of the engine client the gateway calls directly.
type Engine interface {
	Submit(ctx context.Context, target types.Target, chain any) (*actinia.Submission, error)
	Forward(ctx context.Context, method, path string, query url.Values, body any) (*actinia.Response, error)
	Locations(ctx context.Context) (json.RawMessage, error)
	ExportGeoTIFF(ctx context.Context, location, mapset, raster string) (*actinia.Submission, error)
}

// Scheduler queues the first status poll of a submitted job and model
// setup work.
type Scheduler interface {
	EnqueueStatus(ctx context.Context, task types.ResourceStatusTask) error
	EnqueueIngest(ctx context.Context, task types.ModelIngestTask) error
}

type Revoker interface {
	Revoke(ctx context.Context, resourceID string) error
}

type LocationCache interface {
	Get(ctx context.Context) ([]byte, bool, error)
	Set(ctx context.Context, body []byte) error
	Invalidate(ctx context.Context) error
}

type DrainRecorder interface {
	Record(ctx context.Context, req types.DrainRequest) error
	GetByResource(ctx context.Context, resourceID string) (*types.DrainRequest, error)
}

type ChainArchiver interface {
	ArchiveChain(ctx context.Context, resourceID string, chain *types.ProcessChain) (string, error)
	PresignEvent(ctx context.Context, resourceID string) (string, error)
}

// Deps are the collaborators of the gateway. Revoker, Cache, Recorder and
// Archiver are optional and left nil when their backend is not configured.
type Deps struct {
	Engine    Engine
	Builder   *processchain.Builder
	Location  string
	Poller    *relay.Poller
	Waiter    *relay.Waiter
	Scheduler Scheduler
	Revoker   Revoker
	Cache     LocationCache
	Recorder  DrainRecorder
	Archiver  ChainArchiver
	Hub       *hub.Hub
	Logger    logrus.FieldLogger
}

type Server struct {
	Deps
	validate *validator.Validate
	ws       *hub.Handler
}

func New(deps Deps) *Server {
	return &Server{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		ws:       hub.NewHandler(deps.Hub, deps.Logger),
	}
}

// Router registers every gateway route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"result": "OK"})
	})
	r.GET("/ws/savana/:resource_id", s.ws.HandleConnection)

	api := r.Group("/api")
	api.GET("/hub/stats", s.ws.HandleStats)

	api.POST("/drain", s.handleDrain)
	api.GET("/drain/:resource_id", s.handleDrainRecord)

	api.POST("/models/:model_id/setup", s.handleModelSetup)

	api.GET("/resources/:user_id/:resource_id", s.handleResourceStatus)
	api.GET("/resources/:user_id/:resource_id/archive", s.handleResourceArchive)
	api.DELETE("/resources/:resource_id", s.handleRevoke)

	s.registerPassthrough(api)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
		}).Debug("request")
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Logger.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// engineError maps a failed engine call onto a gateway response.
func engineError(c *gin.Context, err error) {
	var failed *actinia.SubmissionFailed
	var tf *actinia.TransientOrFatalError
	switch {
	case errors.As(err, &failed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status_code": failed.StatusCode})
	case errors.As(err, &tf) && tf.Retryable():
		c.JSON(http.StatusServiceUnavailable, errorBody(err))
	default:
		c.JSON(http.StatusBadGateway, errorBody(err))
	}
}
