// Package httpapi provides the operational HTTP surface of embedq:
// task submission, status, stats, feedback analysis, and Prometheus
// metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/config"
	"github.com/fyrsmithlabs/embedq/internal/logging"
	"github.com/fyrsmithlabs/embedq/internal/pipeline"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

// Pipeline is the orchestrator surface the API exposes.
type Pipeline interface {
	AddTask(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error)
	AddBatchTasks(ctx context.Context, payloads []queue.Payload, priority queue.Priority) ([]string, error)
	FeedbackAnalysis(ctx context.Context, queryText string, categories []vectorstore.Category) (*pipeline.FeedbackReport, error)
	Snapshot() pipeline.Metrics
	Running() bool
}

// QueueReader is the queue surface the API reads and maintains.
type QueueReader interface {
	GetStatus(ctx context.Context, id string) (*queue.Task, error)
	Stats(ctx context.Context) (*queue.Stats, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	Ping(ctx context.Context) error
}

// StoreReader is the vector-store surface the API reads.
type StoreReader interface {
	AllStats(ctx context.Context) []vectorstore.NamespaceStats
	Health(ctx context.Context) error
}

// Server serves the embedq HTTP API.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	queue    QueueReader
	store    StoreReader
	logger   *logging.Logger
	cfg      config.HTTPConfig
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(p Pipeline, q QueueReader, store StoreReader, cfg config.HTTPConfig, logger *logging.Logger) (*Server, error) {
	if p == nil || q == nil || store == nil {
		return nil, fmt.Errorf("httpapi: pipeline, queue, and store are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("httpapi: logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		queue:    q,
		store:    store,
		logger:   logger.Named("http"),
		cfg:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleSubmitTask)
	v1.POST("/tasks/batch", s.handleSubmitBatch)
	v1.GET("/tasks/:id", s.handleTaskStatus)
	v1.GET("/queue/stats", s.handleQueueStats)
	v1.POST("/queue/cleanup", s.handleCleanup)
	v1.GET("/store/stats", s.handleStoreStats)
	v1.GET("/pipeline/metrics", s.handlePipelineMetrics)
	v1.POST("/feedback", s.handleFeedback)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
