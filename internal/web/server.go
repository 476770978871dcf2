// Package web exposes the tagging pipeline over HTTP: link and upload
// jobs, job status, and a websocket feed of status changes.
package web

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"tunetag/internal/fetch"
	"tunetag/internal/logger"
	"tunetag/internal/metadata"
	"tunetag/internal/pipeline"
)

// Runner is the part of the pipeline a job needs.
type Runner interface {
	FetchAndProcess(ctx context.Context, rawURL string) pipeline.Result
	Process(ctx context.Context, items []fetch.Item) pipeline.Result
}

// RunnerFactory returns a Runner that reports through hooks.
type RunnerFactory func(hooks pipeline.Hooks) Runner

// Uploader stores an uploaded file.
type Uploader interface {
	Save(name string, r io.Reader, hints metadata.Hints) (fetch.Item, error)
}

type Server struct {
	ctx       context.Context
	jobMgr    *JobManager
	runner    RunnerFactory
	uploads   Uploader
	logger    *logger.Logger
	maxUpload int64
	wg        sync.WaitGroup
}

// NewServer creates a Server. Jobs are cancelled when ctx is.
func NewServer(ctx context.Context, jobMgr *JobManager, runner RunnerFactory, uploads Uploader, log *logger.Logger) *Server {
	return &Server{
		ctx:       ctx,
		jobMgr:    jobMgr,
		runner:    runner,
		uploads:   uploads,
		logger:    log,
		maxUpload: 512 << 20,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.loggingMiddleware())
	router.MaxMultipartMemory = 32 << 20

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.POST("/jobs", s.handleCreateJob)
		api.POST("/uploads", s.handleUpload)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.POST("/jobs/:id/cancel", s.handleCancelJob)
		api.GET("/jobs/:id/ws", s.handleWebSocket)
	}

	return router
}

// Wait blocks until every started job has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
