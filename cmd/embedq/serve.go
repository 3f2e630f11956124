package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/embedq/internal/config"
	"github.com/fyrsmithlabs/embedq/internal/httpapi"
	"github.com/fyrsmithlabs/embedq/internal/logging"
	"github.com/fyrsmithlabs/embedq/internal/models"
	"github.com/fyrsmithlabs/embedq/internal/pipeline"
	"github.com/fyrsmithlabs/embedq/internal/qdrant"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

var (
	logLevel  string
	logFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the embedq daemon",
	Long: `Start the embedding pipeline: connect to Redis and Qdrant, refresh
the model catalog, run the consume loop, and serve the HTTP API.

Configuration is read from the config file (--config, default
~/.config/embedq/config.yaml if present) and can be overridden with
environment variables such as REDIS_URL and MODELS_BASE_URL.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := buildLogger(cmd, cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting embedq",
		zap.String("version", version),
		zap.String("redis", cfg.Redis.KeyPrefix),
		zap.Int("http_port", cfg.HTTP.Port))

	q, err := queue.New(ctx, queue.Config{
		URL:        cfg.Redis.URL,
		Password:   string(cfg.Redis.Password),
		KeyPrefix:  cfg.Redis.KeyPrefix,
		MaxRetries: cfg.Redis.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer q.Close()

	qdrantClient, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		UseTLS: cfg.Qdrant.UseTLS,
		APIKey: string(cfg.Qdrant.APIKey),
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}

	store, err := vectorstore.New(qdrantClient, vectorstore.DefaultNamespaces(cfg.Qdrant.VectorSize), logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("ensuring collections: %w", err)
	}

	selector, err := models.New(cfg.Models, logger)
	if err != nil {
		return fmt.Errorf("creating model selector: %w", err)
	}
	if err := selector.RefreshCatalog(ctx); err != nil {
		// Tasks will fail until a refresh succeeds; the daemon still
		// starts so producers can enqueue.
		logger.Warn(ctx, "initial catalog refresh failed", zap.Error(err))
	}

	orch, err := pipeline.New(q, selector, store, pipeline.Config{
		WatchTimeout: time.Duration(cfg.Pipeline.WatchTimeout),
		ErrorBackoff: time.Duration(cfg.Pipeline.ErrorBackoff),
	}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	orch.RegisterAnalyzer(&pipeline.LatencyBandAnalyzer{})
	orch.RegisterAnalyzer(&pipeline.TextComplexityAnalyzer{})

	srv, err := httpapi.NewServer(orch, q, store, cfg.HTTP, logger)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "consume loop exited", zap.Error(err))
		}
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	orch.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown failed", zap.Error(err))
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logger.Warn(context.Background(), "consume loop did not stop in time")
	}

	logger.Info(context.Background(), "embedq stopped")
	return nil
}

// buildLogger resolves the logging section against the serve flags;
// a flag set on the command line wins over the config file.
func buildLogger(cmd *cobra.Command, logCfg config.LoggingConfig) (*logging.Logger, error) {
	levelName := logCfg.Level
	if cmd.Flags().Changed("log-level") {
		levelName = logLevel
	}
	format := logCfg.Format
	if cmd.Flags().Changed("log-format") {
		format = logFormat
	}

	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	cfg := logging.NewDefaultConfig()
	cfg.Level = level
	cfg.Format = format
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logging.NewLogger(cfg, nil)
}
