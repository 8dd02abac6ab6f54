package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ping", s.handlePing)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Producer submission
	s.echo.POST("/api/sync", s.handleSync)

	// Read-only projections
	s.echo.GET("/api/current", s.handleCurrent)
	s.echo.GET("/api/stats", s.handleStats)

	// Viewer websocket
	s.echo.GET("/ws", s.handleWebSocket)
}
