package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tunetag/internal/fetch"
	"tunetag/internal/metadata"
	"tunetag/internal/pipeline"
	"tunetag/internal/report"
)

type CreateJobRequest struct {
	URL string `json:"url" binding:"required"`
}

type JobResponse struct {
	ID          string             `json:"id"`
	Kind        JobKind            `json:"kind"`
	Source      string             `json:"source"`
	Status      JobStatus          `json:"status"`
	Stage       string             `json:"stage,omitempty"`
	Progress    int                `json:"progress"`
	Total       int                `json:"total"`
	Successes   []pipeline.Success `json:"successes"`
	Warnings    []report.Warning   `json:"warnings"`
	Failures    []report.Failure   `json:"failures"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   string             `json:"created_at"`
	StartedAt   *string            `json:"started_at,omitempty"`
	CompletedAt *string            `json:"completed_at,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	link, err := fetch.Detect(strings.TrimSpace(req.URL))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := s.jobMgr.CreateJob(KindLink, link.URL)
	s.logger.Info("Created job %s for %s link %s", job.ID, link.Platform, link.URL)

	s.start(job, func(ctx context.Context, r Runner) pipeline.Result {
		return r.FetchAndProcess(ctx, link.URL)
	})

	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	hints := metadata.Hints{}
	for _, key := range []string{"title", "artist", "album"} {
		if v := strings.TrimSpace(c.PostForm(key)); v != "" {
			hints[key] = v
		}
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	item, err := s.uploads.Save(fh.Filename, f, hints)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fetch.ErrExtensionNotAllowed) {
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	job := s.jobMgr.CreateJob(KindUpload, item.Source)
	s.logger.Info("Created job %s for upload %s", job.ID, item.Source)

	s.start(job, func(ctx context.Context, r Runner) pipeline.Result {
		return r.Process(ctx, []fetch.Item{item})
	})

	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.jobMgr.ListJobs()
	responses := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = jobToResponse(job)
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobMgr.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (s *Server) handleCancelJob(c *gin.Context) {
	job, err := s.jobMgr.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if job.Status.Finished() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already " + string(job.Status)})
		return
	}

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusCancelled
	})
	if job.Cancel != nil {
		job.Cancel()
	}

	c.JSON(http.StatusOK, gin.H{"status": StatusCancelled})
}

// start runs the job in the background. The job's context follows the
// server's, so shutting down the server cancels it.
func (s *Server) start(job Job, run func(ctx context.Context, r Runner) pipeline.Result) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Cancel = cancel
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.processJob(ctx, job.ID, run)
	}()
}

func (s *Server) processJob(ctx context.Context, id string, run func(ctx context.Context, r Runner) pipeline.Result) {
	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Status = StatusRunning
	})
	s.logger.Info("Starting job %s", id)

	runner := s.runner(pipeline.Hooks{
		OnItems: func(total int) {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Total = total })
		},
		OnProgress: func() {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Progress++ })
		},
		OnStage: func(stage string) {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Stage = stage })
		},
	})

	res := run(ctx, runner)

	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Result = res
		switch {
		case ctx.Err() != nil:
			j.Status = StatusCancelled
		case len(res.Successes) == 0 && len(res.Failures) > 0:
			j.Status = StatusFailed
			j.Error = res.Failures[0].Message
		default:
			j.Status = StatusCompleted
		}
	})

	s.logger.Info("Job %s finished: %d tagged, %d warning(s), %d failed",
		id, len(res.Successes), len(res.Warnings), len(res.Failures))
}

func jobToResponse(job Job) JobResponse {
	resp := JobResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Source:    job.Source,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Total:     job.Total,
		Successes: nonNil(job.Result.Successes),
		Warnings:  nonNil(job.Result.Warnings),
		Failures:  nonNil(job.Result.Failures),
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}

// nonNil keeps empty lists as [] rather than null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
