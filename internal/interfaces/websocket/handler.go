package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ws-broadcast-relay/internal/infrastructure/hub"
	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
)

// WebSocketHandler accepts relay clients and exposes the open set.
type WebSocketHandler struct {
	hub      *hub.Hub
	logger   logger.Logger
	metrics  *metrics.RelayMetrics
	opts     hub.ConnectionOptions
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance. m may be nil.
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	opts hub.ConnectionOptions,
	m *metrics.RelayMetrics,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hubInstance,
		logger:  logger.WithField("handler", "websocket"),
		metrics: m,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect; the relay has no notion of identity.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and registers the client for relaying.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Warn("Rejecting WebSocket connection, hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	// Upgrade writes the HTTP error response itself on failure.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("Rejected WebSocket handshake from %s: %v", c.ClientIP(), err)
		if h.metrics != nil {
			h.metrics.HandshakeFailures.Inc()
		}
		return
	}

	wsConn := hub.NewWebSocketConnection(uuid.NewString(), conn, h.opts, h.relay, h.logger)

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		wsConn.Close()
		return
	}

	<-wsConn.Context().Done()
	h.logger.Debugf("WebSocket connection %s disconnected", wsConn.ID())
}

// ConnectAnyPath accepts a WebSocket upgrade on any unmatched path and
// answers everything else with 404.
func (h *WebSocketHandler) ConnectAnyPath(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.Connect(c)
}

func (h *WebSocketHandler) relay(from hub.Connection, frame hub.Frame) {
	h.hub.Relay(from, frame)
}

// GetConnections returns information about open connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnections()
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":           conn.ID(),
			"remote_addr":  conn.RemoteAddr(),
			"connected_at": conn.ConnectedAt().UTC().Format(time.RFC3339),
			"closed":       conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
