package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunetag/internal/fetch"
	"tunetag/internal/logger"
	"tunetag/internal/metadata"
	"tunetag/internal/pipeline"
	"tunetag/internal/report"
)

type fakeRunner struct {
	hooks   pipeline.Hooks
	block   chan struct{}
	result  pipeline.Result
	fetched chan string
	items   chan []fetch.Item
}

func (f *fakeRunner) FetchAndProcess(ctx context.Context, rawURL string) pipeline.Result {
	f.fetched <- rawURL
	return f.run(ctx)
}

func (f *fakeRunner) Process(ctx context.Context, items []fetch.Item) pipeline.Result {
	f.items <- items
	return f.run(ctx)
}

func (f *fakeRunner) run(ctx context.Context) pipeline.Result {
	f.hooks.OnItems(1)
	f.hooks.OnStage("tagging")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return pipeline.Failed("x", ctx.Err())
		}
	}
	f.hooks.OnProgress()
	return f.result
}

type fakeUploader struct {
	err   error
	name  string
	hints metadata.Hints
	body  string
}

func (f *fakeUploader) Save(name string, r io.Reader, hints metadata.Hints) (fetch.Item, error) {
	if f.err != nil {
		return fetch.Item{}, f.err
	}
	b, _ := io.ReadAll(r)
	f.name, f.hints, f.body = name, hints, string(b)
	return fetch.Item{Path: "/uploads/" + name, Hints: hints, Source: name}, nil
}

type testEnv struct {
	srv    *Server
	jm     *JobManager
	runner *fakeRunner
	up     *fakeUploader
	router *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{
		jm: NewJobManager(),
		runner: &fakeRunner{
			fetched: make(chan string, 1),
			items:   make(chan []fetch.Item, 1),
		},
		up: &fakeUploader{},
	}
	factory := func(h pipeline.Hooks) Runner {
		env.runner.hooks = h
		return env.runner
	}
	env.srv = NewServer(ctx, env.jm, factory, env.up, logger.NewWithWriter(false, io.Discard))
	env.router = env.srv.Router()
	t.Cleanup(func() {
		cancel()
		env.srv.Wait()
	})
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, JobResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var resp JobResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (e *testEnv) waitStatus(t *testing.T, id string, want JobStatus) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		job, _ = e.jm.GetJob(id)
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job never reached %s", want)
	return job
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateJobRunsPipeline(t *testing.T) {
	env := newEnv(t)
	env.runner.result = pipeline.Result{
		Successes: []pipeline.Success{{Path: "/music/a.mp3", Record: metadata.Record{Title: "A"}}},
		Warnings:  []report.Warning{{Item: "a.mp3", Message: "lastfm: timeout"}},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"url":"https://youtu.be/abc"}`))
	req.Header.Set("Content-Type", "application/json")
	w, resp := env.do(t, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, KindLink, resp.Kind)
	assert.Equal(t, "https://youtu.be/abc", resp.Source)
	assert.Equal(t, "https://youtu.be/abc", <-env.runner.fetched)

	job := env.waitStatus(t, resp.ID, StatusCompleted)
	assert.Equal(t, 1, job.Total)
	assert.Equal(t, 1, job.Progress)
	assert.Equal(t, "tagging", job.Stage)

	w, got := env.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got.Successes, 1)
	assert.Equal(t, "A", got.Successes[0].Record.Title)
	require.Len(t, got.Warnings, 1)
	assert.Empty(t, got.Failures)
	assert.NotNil(t, got.CompletedAt)
}

func TestCreateJobAllFailed(t *testing.T) {
	env := newEnv(t)
	env.runner.result = pipeline.Failed("https://youtu.be/abc", errors.New("gave up after 3 attempts"))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"url":"https://youtu.be/abc"}`))
	w, resp := env.do(t, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	<-env.runner.fetched

	job := env.waitStatus(t, resp.ID, StatusFailed)
	assert.Equal(t, "gave up after 3 attempts", job.Error)
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	env := newEnv(t)

	for _, body := range []string{`{}`, `not json`, `{"url":"ftp://example.com/a.mp3"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
		w, _ := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, env.jm.ListJobs())
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	env := newEnv(t)
	env.runner.result = pipeline.Result{Successes: []pipeline.Success{{Path: "/music/song.mp3"}}}

	req := uploadRequest(t, "song.mp3", "ID3data", map[string]string{"artist": "Marracash", "title": " "})
	w, resp := env.do(t, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, KindUpload, resp.Kind)
	assert.Equal(t, "song.mp3", env.up.name)
	assert.Equal(t, "ID3data", env.up.body)
	assert.Equal(t, metadata.Hints{"artist": "Marracash"}, env.up.hints)

	items := <-env.runner.items
	require.Len(t, items, 1)
	assert.Equal(t, "/uploads/song.mp3", items[0].Path)
	env.waitStatus(t, resp.ID, StatusCompleted)
}

func TestUploadErrors(t *testing.T) {
	env := newEnv(t)

	w, _ := env.do(t, uploadRequest(t, "", "", map[string]string{"title": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.up.err = fetch.ErrExtensionNotAllowed
	w, _ = env.do(t, uploadRequest(t, "virus.exe", "MZ", nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	env.up.err = errors.New("disk full")
	w, _ = env.do(t, uploadRequest(t, "song.mp3", "x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCancelJob(t *testing.T) {
	env := newEnv(t)
	env.runner.block = make(chan struct{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"url":"https://soundcloud.com/a/b"}`))
	_, resp := env.do(t, req)
	<-env.runner.fetched
	env.waitStatus(t, resp.ID, StatusRunning)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs/"+resp.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	job := env.waitStatus(t, resp.ID, StatusCancelled)
	assert.NotNil(t, job.CompletedAt)
	require.Eventually(t, func() bool {
		j, _ := env.jm.GetJob(resp.ID)
		return len(j.Result.Failures) == 1
	}, 2*time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs/"+resp.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJobNotFound(t *testing.T) {
	env := newEnv(t)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing", nil),
		httptest.NewRequest(http.MethodPost, "/api/jobs/job_missing/cancel", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing/ws", nil),
	} {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, req.URL.Path)
	}
}

func TestListJobs(t *testing.T) {
	env := newEnv(t)
	env.jm.CreateJob(KindLink, "https://example.com/1")
	env.jm.CreateJob(KindUpload, "b.mp3")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var jobs []JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "https://example.com/1", jobs[0].Source)
	assert.Equal(t, []pipeline.Success{}, jobs[0].Successes)
}

func TestWebSocketStreamsUntilFinished(t *testing.T) {
	env := newEnv(t)
	env.runner.block = make(chan struct{})
	env.runner.result = pipeline.Result{Successes: []pipeline.Success{{Path: "/music/a.mp3"}}}

	ts := httptest.NewServer(env.router)
	defer ts.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"url":"https://music.youtube.com/watch?v=abc"}`))
	_, resp := env.do(t, req)
	<-env.runner.fetched

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + resp.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first JobResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, resp.ID, first.ID)

	close(env.runner.block)

	var last JobResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg JobResponse
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		last = msg
	}
	assert.Equal(t, StatusCompleted, last.Status)
	assert.Len(t, last.Successes, 1)
}
