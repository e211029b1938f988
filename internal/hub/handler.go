package hub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	hub    *Hub
	logger logrus.FieldLogger
}

func NewHandler(hub *Hub, logger logrus.FieldLogger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// HandleConnection upgrades the request and subscribes the new client to the
// status topic of the resource_id path parameter, if any.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.logger)
	h.hub.register(client)
	if resourceID := c.Param("resource_id"); resourceID != "" {
		h.hub.Join(client, resourceID)
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}
