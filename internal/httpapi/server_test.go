package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedq/internal/config"
	"github.com/fyrsmithlabs/embedq/internal/logging"
	"github.com/fyrsmithlabs/embedq/internal/pipeline"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

type stubPipeline struct {
	addErr      error
	feedbackErr error
	metrics     pipeline.Metrics
	lastPayload queue.Payload
	lastBatch   []queue.Payload
	running     bool
}

func (p *stubPipeline) AddTask(_ context.Context, payload queue.Payload, _ queue.Priority) (string, error) {
	if p.addErr != nil {
		return "", p.addErr
	}
	p.lastPayload = payload
	return "task-1", nil
}

func (p *stubPipeline) AddBatchTasks(_ context.Context, payloads []queue.Payload, _ queue.Priority) ([]string, error) {
	if p.addErr != nil {
		return nil, p.addErr
	}
	p.lastBatch = payloads
	ids := make([]string, len(payloads))
	for i := range ids {
		ids[i] = fmt.Sprintf("task-%d", i+1)
	}
	return ids, nil
}

func (p *stubPipeline) FeedbackAnalysis(_ context.Context, query string, _ []vectorstore.Category) (*pipeline.FeedbackReport, error) {
	if p.feedbackErr != nil {
		return nil, p.feedbackErr
	}
	return &pipeline.FeedbackReport{Query: query, Recommendation: "no related context found; treat the query as novel"}, nil
}

func (p *stubPipeline) Snapshot() pipeline.Metrics { return p.metrics }
func (p *stubPipeline) Running() bool              { return p.running }

type stubQueue struct {
	task     *queue.Task
	statErr  error
	pingErr  error
	removed  int
	lastKeep time.Duration
}

func (q *stubQueue) GetStatus(_ context.Context, id string) (*queue.Task, error) {
	if q.task == nil || q.task.ID != id {
		return nil, queue.ErrTaskNotFound
	}
	return q.task, nil
}

func (q *stubQueue) Stats(context.Context) (*queue.Stats, error) {
	if q.statErr != nil {
		return nil, q.statErr
	}
	return &queue.Stats{
		Queued:     map[queue.Priority]int64{queue.PriorityNormal: 2},
		Processing: 1,
	}, nil
}

func (q *stubQueue) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	q.lastKeep = olderThan
	return q.removed, nil
}

func (q *stubQueue) Ping(context.Context) error { return q.pingErr }

type stubStore struct {
	stats     []vectorstore.NamespaceStats
	healthErr error
}

func (s *stubStore) AllStats(context.Context) []vectorstore.NamespaceStats { return s.stats }
func (s *stubStore) Health(context.Context) error                          { return s.healthErr }

func setupServer(t *testing.T) (*Server, *stubPipeline, *stubQueue, *stubStore) {
	t.Helper()
	p := &stubPipeline{running: true}
	q := &stubQueue{}
	store := &stubStore{}
	srv, err := NewServer(p, q, store, config.HTTPConfig{Host: "localhost", Port: 9091}, logging.NewNop())
	require.NoError(t, err)
	return srv, p, q, store
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, &stubQueue{}, &stubStore{}, config.HTTPConfig{}, logging.NewNop())
	assert.Error(t, err)

	_, err = NewServer(&stubPipeline{}, &stubQueue{}, &stubStore{}, config.HTTPConfig{}, nil)
	assert.ErrorContains(t, err, "logger is required")
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Running)
}

func TestHealthDegraded(t *testing.T) {
	srv, _, q, _ := setupServer(t)
	q.pingErr = errors.New("redis down")

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Queue, "redis down")
	assert.Equal(t, "ok", resp.Store)
}

func TestSubmitTask(t *testing.T) {
	srv, p, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks",
		`{"text":"hello","category":"knowledge","layer":"backend","priority":"high"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "hello", p.lastPayload.Text)
}

func TestSubmitTaskInvalidPriority(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks",
		`{"text":"hello","category":"knowledge","layer":"backend","priority":"asap"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTaskInvalidPayload(t *testing.T) {
	srv, p, _, _ := setupServer(t)
	p.addErr = fmt.Errorf("%w: text is required", pipeline.ErrInvalidPayload)

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks",
		`{"category":"knowledge","layer":"backend"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTaskQueueUnavailable(t *testing.T) {
	srv, p, _, _ := setupServer(t)
	p.addErr = errors.New("connection refused")

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks",
		`{"text":"hello","category":"knowledge","layer":"backend"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSubmitBatch(t *testing.T) {
	srv, p, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks/batch",
		`{"tasks":[{"text":"a","category":"knowledge","layer":"backend"},{"text":"b","category":"tasks","layer":"frontend"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.TaskIDs, 2)
	assert.Len(t, p.lastBatch, 2)
}

func TestSubmitBatchEmpty(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/tasks/batch", `{"tasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskStatus(t *testing.T) {
	srv, _, q, _ := setupServer(t)
	q.task = &queue.Task{ID: "abc", Status: queue.StatusCompleted}

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var task queue.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, queue.StatusCompleted, task.Status)
}

func TestTaskStatusNotFound(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueStats(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats queue.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Processing)
}

func TestCleanup(t *testing.T) {
	srv, _, q, _ := setupServer(t)
	q.removed = 7

	rec := doRequest(srv, http.MethodPost, "/api/v1/queue/cleanup", `{"older_than_days":30}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CleanupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Removed)
	assert.Equal(t, 30*24*time.Hour, q.lastKeep)
}

func TestCleanupRejectsNonPositiveAge(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/queue/cleanup", `{"older_than_days":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreStats(t *testing.T) {
	srv, _, _, store := setupServer(t)
	store.stats = []vectorstore.NamespaceStats{
		{Namespace: "knowledge_backend", PointsCount: 42},
	}

	rec := doRequest(srv, http.MethodGet, "/api/v1/store/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StoreStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Namespaces, 1)
	assert.Equal(t, uint64(42), resp.Namespaces[0].PointsCount)
}

func TestPipelineMetrics(t *testing.T) {
	srv, p, _, _ := setupServer(t)
	p.metrics = pipeline.Metrics{Processed: 10, Completed: 9, Failed: 1}

	rec := doRequest(srv, http.MethodGet, "/api/v1/pipeline/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var m pipeline.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, int64(9), m.Completed)
}

func TestFeedback(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/feedback", `{"query":"how do embeddings work"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report pipeline.FeedbackReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "how do embeddings work", report.Query)
	assert.NotEmpty(t, report.Recommendation)
}

func TestFeedbackInvalidQuery(t *testing.T) {
	srv, p, _, _ := setupServer(t)
	p.feedbackErr = fmt.Errorf("%w: query text is required", pipeline.ErrInvalidPayload)

	rec := doRequest(srv, http.MethodPost, "/api/v1/feedback", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
