// Package ui exposes the HTTP API: research lifecycle endpoints, SSE
// progress streams and export downloads.
package ui

import (
	"threadlens/internal"
	"threadlens/internal/config"
	"threadlens/internal/pipeline"
	"threadlens/internal/summary"
	"threadlens/ports"

	"github.com/gin-gonic/gin"
)

// Server wires the HTTP surface over the pipeline worker and the store.
type Server struct {
	router     *gin.Engine
	store      ports.ResearchStore
	worker     *pipeline.Worker
	summarizer *summary.Summarizer
	exporter   ports.Exporter
	collection config.CollectionConfig
	logger     *internal.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(cfg *config.Config, store ports.ResearchStore, worker *pipeline.Worker, summarizer *summary.Summarizer, exporter ports.Exporter) *Server {
	gin.SetMode(cfg.Server.GinMode)
	s := &Server{
		router:     gin.Default(),
		store:      store,
		worker:     worker,
		summarizer: summarizer,
		exporter:   exporter,
		collection: cfg.Collection,
		logger:     internal.NewDefaultLogger("API"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/research")
	{
		api.POST("", s.handleCreateResearch)
		api.GET("/history", s.handleHistory)
		api.GET("/:id", s.handleGetResearch)
		api.GET("/:id/stream", s.handleResearchStream)
		api.POST("/:id/summarize", s.handleSummarize)
		api.GET("/:id/export", s.handleExportDownload)

		api.POST("/:id/expand", s.handleExpand)
		api.GET("/:id/expand/status", s.handleExpandStatus)
		api.GET("/:id/expand/stream", s.handleExpandStream)

		api.POST("/:id/threads", s.handleAddThread)
		api.GET("/:id/threads/stream", s.handleAddThreadStream)
		api.DELETE("/:id/threads/:threadID", s.handleRemoveThread)

		api.PUT("/:id/comments/:commentID/note", s.handleSetUserNote)

		api.POST("/:id/archive", s.handleArchive)
		api.DELETE("/:id", s.handleDeleteResearch)
	}
}

// Run starts the HTTP listener and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Info("Listening on %s", addr)
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
