// Package api exposes the HTTP front end: the chat endpoint, status and
// health probes, and the WebSocket live event stream.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/lucia-home/lucia/pkg/events"
	"github.com/lucia-home/lucia/pkg/orchestrator"
)

// HealthCheck probes a backing dependency, typically the durable store.
type HealthCheck func(ctx context.Context) error

// Server wires the engine and live stream into HTTP handlers.
type Server struct {
	engine         *orchestrator.Engine
	connManager    *events.ConnectionManager
	health         HealthCheck
	allowedOrigins []string
}

// NewServer creates the API server. health and connManager may be nil; the
// corresponding endpoints degrade gracefully.
func NewServer(engine *orchestrator.Engine, connManager *events.ConnectionManager,
	health HealthCheck, allowedOrigins []string) *Server {
	return &Server{
		engine:         engine,
		connManager:    connManager,
		health:         health,
		allowedOrigins: allowedOrigins,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.GET("/status", s.handleStatus)
	v1.GET("/health", s.handleHealth)

	r.GET("/ws", s.handleWS)
	return r
}
