package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/pipeline"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Queue   string `json:"queue"`
	Store   string `json:"store"`
	Running bool   `json:"pipeline_running"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := HealthResponse{Status: "ok", Queue: "ok", Store: "ok", Running: s.pipeline.Running()}

	if err := s.queue.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Queue = err.Error()
	}
	if err := s.store.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// SubmitTaskRequest is the request body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Text      string                 `json:"text"`
	Category  string                 `json:"category"`
	Layer     string                 `json:"layer"`
	ModelTier string                 `json:"model_tier,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
}

func (r SubmitTaskRequest) payload() queue.Payload {
	return queue.Payload{
		Text:      r.Text,
		Category:  r.Category,
		Layer:     r.Layer,
		ModelTier: r.ModelTier,
		Metadata:  r.Metadata,
	}
}

// SubmitTaskResponse is the response body for POST /api/v1/tasks.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleSubmitTask(c echo.Context) error {
	var req SubmitTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := s.pipeline.AddTask(c.Request().Context(), req.payload(), priority)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error(c.Request().Context(), "enqueue failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "enqueue failed")
	}
	return c.JSON(http.StatusAccepted, SubmitTaskResponse{TaskID: id})
}

// SubmitBatchRequest is the request body for POST /api/v1/tasks/batch.
type SubmitBatchRequest struct {
	Tasks    []SubmitTaskRequest `json:"tasks"`
	Priority string              `json:"priority,omitempty"`
}

// SubmitBatchResponse is the response body for POST /api/v1/tasks/batch.
type SubmitBatchResponse struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) handleSubmitBatch(c echo.Context) error {
	var req SubmitBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Tasks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "tasks field is required")
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	payloads := make([]queue.Payload, len(req.Tasks))
	for i, task := range req.Tasks {
		payloads[i] = task.payload()
	}

	ids, err := s.pipeline.AddBatchTasks(c.Request().Context(), payloads, priority)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error(c.Request().Context(), "batch enqueue failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "enqueue failed")
	}
	return c.JSON(http.StatusAccepted, SubmitBatchResponse{TaskIDs: ids})
}

func (s *Server) handleTaskStatus(c echo.Context) error {
	task, err := s.queue.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		}
		s.logger.Error(c.Request().Context(), "task lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "task lookup failed")
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleQueueStats(c echo.Context) error {
	stats, err := s.queue.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "queue stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "queue stats failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// CleanupRequest is the request body for POST /api/v1/queue/cleanup.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// CleanupResponse is the response body for POST /api/v1/queue/cleanup.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) handleCleanup(c echo.Context) error {
	var req CleanupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OlderThanDays <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "older_than_days must be > 0")
	}

	removed, err := s.queue.Cleanup(c.Request().Context(), time.Duration(req.OlderThanDays)*24*time.Hour)
	if err != nil {
		s.logger.Error(c.Request().Context(), "cleanup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "cleanup failed")
	}
	return c.JSON(http.StatusOK, CleanupResponse{Removed: removed})
}

// StoreStatsResponse is the response body for GET /api/v1/store/stats.
type StoreStatsResponse struct {
	Namespaces []vectorstore.NamespaceStats `json:"namespaces"`
}

func (s *Server) handleStoreStats(c echo.Context) error {
	return c.JSON(http.StatusOK, StoreStatsResponse{
		Namespaces: s.store.AllStats(c.Request().Context()),
	})
}

func (s *Server) handlePipelineMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	categories := make([]vectorstore.Category, len(req.Categories))
	for i, category := range req.Categories {
		categories[i] = vectorstore.Category(category)
	}

	report, err := s.pipeline.FeedbackAnalysis(c.Request().Context(), req.Query, categories)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error(c.Request().Context(), "feedback analysis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "feedback analysis failed")
	}
	return c.JSON(http.StatusOK, report)
}

func parsePriority(s string) (queue.Priority, error) {
	if s == "" {
		return queue.PriorityNormal, nil
	}
	return queue.ParsePriority(s)
}
