package ui

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "threadlens/internal/errors"
	"threadlens/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var validTimeFilters = map[string]bool{
	"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true,
}

type createResearchRequest struct {
	Question             string   `json:"question"`
	MaxThreads           int      `json:"max_threads"`
	MaxCommentsPerThread int      `json:"max_comments_per_thread"`
	TimeFilter           string   `json:"time_filter"`
	ThreadURLs           []string `json:"thread_urls"`
}

func (s *Server) handleCreateResearch(c *gin.Context) {
	var req createResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	settings := s.clampSettings(req)
	researchID := newResearchID()

	if err := s.store.CreateResearch(c.Request.Context(), researchID, question, settings); err != nil {
		s.logger.Error("Failed to create research: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create research"})
		return
	}

	if err := s.worker.StartResearch(researchID, question, settings, req.ThreadURLs); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("Research %s created: %q", researchID, question)
	c.JSON(http.StatusAccepted, gin.H{
		"research_id": researchID,
		"status":      models.StatusPending,
	})
}

// clampSettings applies defaults and hard caps to user-supplied settings.
func (s *Server) clampSettings(req createResearchRequest) models.Settings {
	maxThreads := req.MaxThreads
	if maxThreads <= 0 {
		maxThreads = s.collection.DefaultMaxThreads
	}
	if maxThreads > s.collection.MaxThreadsLimit {
		maxThreads = s.collection.MaxThreadsLimit
	}

	maxComments := req.MaxCommentsPerThread
	if maxComments <= 0 {
		maxComments = s.collection.DefaultCommentsPerThread
	}
	if maxComments > s.collection.CommentsPerThreadLimit {
		maxComments = s.collection.CommentsPerThreadLimit
	}

	timeFilter := req.TimeFilter
	if !validTimeFilters[timeFilter] {
		timeFilter = "all"
	}

	return models.Settings{
		MaxThreads:           maxThreads,
		MaxCommentsPerThread: maxComments,
		TimeFilter:           timeFilter,
	}
}

func (s *Server) handleGetResearch(c *gin.Context) {
	researchID := c.Param("id")
	research, err := s.store.GetResearch(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load research"})
		return
	}
	if research == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "research not found"})
		return
	}

	threads, err := s.store.GetThreads(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load threads"})
		return
	}
	comments, err := s.store.GetComments(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"research": research,
		"threads":  threads,
		"comments": comments,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	history, err := s.store.GetHistory(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if history == nil {
		history = []models.Research{}
	}
	c.JSON(http.StatusOK, gin.H{"researches": history})
}

func (s *Server) handleSummarize(c *gin.Context) {
	researchID := c.Param("id")
	research, err := s.store.GetResearch(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load research"})
		return
	}
	if research == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "research not found"})
		return
	}
	if research.Status != models.StatusComplete {
		c.JSON(http.StatusBadRequest, gin.H{"error": "research must be complete before summarizing"})
		return
	}

	comments, err := s.store.GetComments(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}

	text, err := s.summarizer.Summarize(c.Request.Context(), research.Question, comments)
	if err != nil {
		s.logger.Error("Summarization failed for %s: %v", researchID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "summarization failed"})
		return
	}
	if err := s.store.SaveSummary(c.Request.Context(), researchID, text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save summary"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": text})
}

func (s *Server) handleExportDownload(c *gin.Context) {
	researchID := c.Param("id")
	research, err := s.store.GetResearch(c.Request.Context(), researchID)
	if err != nil || research == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "research not found"})
		return
	}
	threads, err := s.store.GetThreads(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load threads"})
		return
	}
	comments, err := s.store.GetComments(c.Request.Context(), researchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}

	// Regenerate on demand so downloads always reflect current data,
	// including notes edited since the last pipeline run.
	path, err := s.exporter.Export(c.Request.Context(), research, threads, comments)
	if err != nil {
		s.logger.Error("Export failed for %s: %v", researchID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) handleRemoveThread(c *gin.Context) {
	researchID := c.Param("id")
	threadID := c.Param("threadID")

	if err := s.worker.RemoveThread(c.Request.Context(), researchID, threadID); err != nil {
		s.logger.Error("Failed to remove thread %s from %s: %v", threadID, researchID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove thread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": threadID})
}

type userNoteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleSetUserNote(c *gin.Context) {
	var req userNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.store.SetUserNote(c.Request.Context(), c.Param("id"), c.Param("commentID"), req.Note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save note"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func (s *Server) handleArchive(c *gin.Context) {
	researchID := c.Param("id")
	if err := s.store.SetArchived(c.Request.Context(), researchID, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to archive research"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

func (s *Server) handleDeleteResearch(c *gin.Context) {
	researchID := c.Param("id")
	if err := s.store.DeleteResearch(c.Request.Context(), researchID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete research"})
		return
	}
	s.logger.Info("Research %s permanently deleted", researchID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// statusForError maps application error codes onto HTTP statuses.
func statusForError(err error) int {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeConflict:
		return http.StatusConflict
	case apperrors.CodeExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// newResearchID derives a short hex identifier from a random UUID.
func newResearchID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
