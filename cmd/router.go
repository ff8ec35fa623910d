package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"ws-broadcast-relay/internal/infrastructure/hub"
	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
	"ws-broadcast-relay/internal/interfaces/websocket"
)

func InitRouter(
	hubInstance *hub.Hub,
	opts hub.ConnectionOptions,
	reg *prometheus.Registry,
	m *metrics.RelayMetrics,
	log logger.Logger,
) (http.Handler, func()) {
	router := gin.New()
	accessLog := log.WithField("component", "http").Writer()
	router.Use(gin.LoggerWithWriter(accessLog))
	router.Use(gin.Recovery())

	// Health check endpoint
	router.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": hubInstance.IsRunning(),
			"connections": hubInstance.ConnectionCount(),
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	wsHandler := websocket.NewWebSocketHandler(hubInstance, opts, m, log)
	websocket.InitWebSocketRouter(wsHandler, router)

	return router, func() { accessLog.Close() }
}
