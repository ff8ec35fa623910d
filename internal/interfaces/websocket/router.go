package websocket

import (
	"github.com/gin-gonic/gin"
)

// InitWebSocketRouter mounts the relay endpoint. Like a bare WebSocket
// server, the relay accepts an upgrade on any path; "/" and "/ws" are the
// documented ones.
func InitWebSocketRouter(wsHandler *WebSocketHandler, router *gin.Engine) {
	router.GET("/", wsHandler.Connect)
	router.GET("/ws", wsHandler.Connect)
	router.NoRoute(wsHandler.ConnectAnyPath)

	apiGroup := router.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
