package ui

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"threadlens/internal/pipeline"
	"threadlens/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleResearchStream(c *gin.Context) {
	s.streamProgress(c, c.Param("id"), models.OpResearch)
}

func (s *Server) handleExpandStream(c *gin.Context) {
	s.streamProgress(c, c.Param("id"), models.OpExpand)
}

func (s *Server) handleAddThreadStream(c *gin.Context) {
	s.streamProgress(c, c.Param("id"), models.OpAddThread)
}

// streamProgress attaches the HTTP client to a worker's progress stream and
// relays events as SSE until a terminal event, the read timeout, or client
// disconnect.
func (s *Server) streamProgress(c *gin.Context, researchID, kind string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	stream, ok := s.worker.Registry().Attach(researchID, kind)
	if !ok {
		// No worker is running. For the main pipeline this usually means the
		// client reconnected after completion; answer with the stored state.
		s.sendStoredState(c, researchID)
		return
	}

	timeout := pipeline.ReadTimeout(kind)
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-stream.Events():
			if !open {
				return false
			}
			sendEvent(c, event)
			if event.Terminal() {
				stream.Release()
				return false
			}
			return true

		case <-time.After(timeout):
			// Give up on this connection only. The worker is still running
			// and still holds its registry entry, so a retriggered
			// operation stays rejected until the real terminal event.
			s.logger.Warn("Stream %s/%s timed out after %s", researchID, kind, timeout)
			sendEvent(c, models.ProgressEvent{
				Stage:    models.StageError,
				Message:  "operation timed out",
				Progress: 0,
			})
			return false

		case <-ctx.Done():
			return false
		}
	})
}

// sendStoredState emits a single terminal event derived from the persisted
// research status, for clients that attach when no worker is active.
func (s *Server) sendStoredState(c *gin.Context, researchID string) {
	research, err := s.store.GetResearch(c.Request.Context(), researchID)
	if err != nil || research == nil {
		sendEvent(c, models.ProgressEvent{Stage: models.StageError, Message: "research not found"})
		return
	}
	switch research.Status {
	case models.StatusComplete, models.StatusArchived:
		sendEvent(c, models.ProgressEvent{Stage: models.StageComplete, Message: "Research complete!", Progress: 100})
	case models.StatusError:
		sendEvent(c, models.ProgressEvent{Stage: models.StageError, Message: "research failed"})
	default:
		sendEvent(c, models.ProgressEvent{Stage: models.StageError, Message: "no active operation"})
	}
}

func sendEvent(c *gin.Context, event models.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SSE] Failed to marshal event: %v", err)
		return
	}
	c.SSEvent("progress", string(payload))
	c.Writer.Flush()
}

func (s *Server) handleExpand(c *gin.Context) {
	researchID := c.Param("id")
	if err := s.worker.StartExpand(c.Request.Context(), researchID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("Expand started for research %s", researchID)
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleExpandStatus(c *gin.Context) {
	researchID := c.Param("id")
	exhausted, err := s.worker.ExpandExhausted(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":    s.worker.Registry().Active(researchID, models.OpExpand),
		"exhausted": exhausted,
	})
}

type addThreadRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleAddThread(c *gin.Context) {
	var req addThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	result, err := s.worker.StartAddThread(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if result.AlreadyExists {
		c.JSON(http.StatusOK, gin.H{"thread_id": result.ThreadID, "already_exists": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"thread_id": result.ThreadID, "status": "started"})
}
