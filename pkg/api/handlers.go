package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const healthTimeout = 5 * time.Second

type chatRequest struct {
	Message   string `json:"message" binding:"required"`
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Reply  string `json:"reply"`
	TaskID string `json:"task_id"`
}

// handleChat runs one utterance through the pipeline. The durable task id is
// assigned here when the client did not supply one, so the client can resume
// the conversation later.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	reply, err := s.engine.ProcessRequest(c.Request.Context(), req.Message, taskID, req.SessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(statusClientClosedRequest, gin.H{"error": "request canceled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chatResponse{Reply: reply, TaskID: taskID})
}

// statusClientClosedRequest is the nginx convention for canceled requests.
const statusClientClosedRequest = 499

// handleStatus reports engine readiness and the registered agents.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetStatus())
}

// handleHealth probes the backing store.
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleWS upgrades the connection and hands it to the ConnectionManager,
// which blocks until the client disconnects.
func (s *Server) handleWS(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream not available"})
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins}
	if len(s.allowedOrigins) == 0 {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return
	}
	s.connManager.HandleConnection(c.Request.Context(), conn)
}
