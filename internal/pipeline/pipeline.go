// Package pipeline runs the consume loop: watch the queue, embed the
// task text, persist the vector, acknowledge back to the queue. One
// Orchestrator is a single sequential consumer; run several instances
// against a shared queue to scale out.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/logging"
	"github.com/fyrsmithlabs/embedq/internal/models"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

var (
	// ErrInvalidPayload means a submitted payload failed validation.
	ErrInvalidPayload = errors.New("pipeline: invalid payload")

	// ErrAlreadyRunning means Run was called on a running orchestrator.
	ErrAlreadyRunning = errors.New("pipeline: already running")
)

// TaskQueue is the queue surface the orchestrator consumes from.
type TaskQueue interface {
	Enqueue(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error)
	WatchBlocking(ctx context.Context, timeout time.Duration) (*queue.Task, error)
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Fail(ctx context.Context, id string, taskErr error, retry bool) error
	Stats(ctx context.Context) (*queue.Stats, error)
}

// Embedder resolves text to vectors with tier fallback.
type Embedder interface {
	Embed(ctx context.Context, text string, tier models.Tier) (*models.Embedding, error)
}

// VectorStore is the persistence surface the orchestrator writes to.
type VectorStore interface {
	UpsertPoints(ctx context.Context, category vectorstore.Category, layer vectorstore.Layer, items []vectorstore.Item) ([]string, error)
	CrossNamespaceSearch(ctx context.Context, keys []vectorstore.NamespaceKey, vector []float32, opts vectorstore.SearchOptions) (*vectorstore.CrossNamespaceResult, error)
	Namespaces() vectorstore.Namespaces
}

// Config tunes the consume loop.
type Config struct {
	// WatchTimeout bounds each blocking wait on the queue.
	WatchTimeout time.Duration
	// ErrorBackoff is the sleep after a loop-level failure, so a dead
	// backend does not produce a hot loop.
	ErrorBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.WatchTimeout <= 0 {
		c.WatchTimeout = 5 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
}

// TaskOutcome is what the orchestrator records on task completion and
// hands to feedback analyzers.
type TaskOutcome struct {
	Task      *queue.Task
	Embedding *models.Embedding
	PointIDs  []string
	Duration  time.Duration
}

// taskResult is the JSON persisted into the queue's completed archive.
type taskResult struct {
	PointIDs   []string     `json:"point_ids"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Usage      models.Usage `json:"usage"`
	DurationMS int64        `json:"duration_ms"`
}

// Metrics is a rolling snapshot of loop activity.
type Metrics struct {
	Processed  int64         `json:"processed"`
	Completed  int64         `json:"completed"`
	Failed     int64         `json:"failed"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Orchestrator composes queue, embedder, and vector store into the
// consume loop.
type Orchestrator struct {
	queue    TaskQueue
	embedder Embedder
	store    VectorStore
	cfg      Config
	logger   *logging.Logger

	analyzers []Analyzer

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	statsMu    sync.Mutex
	processed  int64
	completed  int64
	failed     int64
	totalTime  time.Duration
}

// New wires an orchestrator. Analyzers can be registered before Run.
func New(q TaskQueue, embedder Embedder, store VectorStore, cfg Config, logger *logging.Logger) (*Orchestrator, error) {
	if q == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("pipeline: queue, embedder, and store are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline: logger is required")
	}
	cfg.applyDefaults()
	return &Orchestrator{
		queue:    q,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("pipeline"),
	}, nil
}

// RegisterAnalyzer adds a feedback analyzer. Not safe to call once the
// loop is running.
func (o *Orchestrator) RegisterAnalyzer(a Analyzer) {
	o.analyzers = append(o.analyzers, a)
}

// AddTask validates the payload and enqueues it.
func (o *Orchestrator) AddTask(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error) {
	if err := o.validatePayload(payload); err != nil {
		return "", err
	}
	return o.queue.Enqueue(ctx, payload, priority)
}

// AddBatchTasks validates every payload up front, then enqueues them
// all. Nothing is enqueued if any payload is invalid.
func (o *Orchestrator) AddBatchTasks(ctx context.Context, payloads []queue.Payload, priority queue.Priority) ([]string, error) {
	for i, p := range payloads {
		if err := o.validatePayload(p); err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
	}
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id, err := o.queue.Enqueue(ctx, p, priority)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (o *Orchestrator) validatePayload(p queue.Payload) error {
	if p.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidPayload)
	}
	if !o.store.Namespaces().Contains(vectorstore.Category(p.Category), vectorstore.Layer(p.Layer)) {
		return fmt.Errorf("%w: unknown namespace %s/%s", ErrInvalidPayload, p.Category, p.Layer)
	}
	if _, err := models.ParseTier(p.ModelTier); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Run drives the consume loop until ctx is cancelled or Stop is called.
// Stop is cooperative: it is only observed between tasks, so at most
// one task finishes after the signal.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.stop = make(chan struct{})
	stop := o.stop
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.logger.Info(ctx, "consume loop started",
		zap.Duration("watch_timeout", o.cfg.WatchTimeout))

	for {
		select {
		case <-ctx.Done():
			o.logger.Info(ctx, "consume loop stopped", zap.String("reason", "context"))
			return ctx.Err()
		case <-stop:
			o.logger.Info(ctx, "consume loop stopped", zap.String("reason", "stop"))
			return nil
		default:
		}

		task, err := o.queue.WatchBlocking(ctx, o.cfg.WatchTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			loopErrors.Inc()
			o.logger.Error(ctx, "queue watch failed, backing off",
				zap.Duration("backoff", o.cfg.ErrorBackoff),
				zap.Error(err))
			select {
			case <-time.After(o.cfg.ErrorBackoff):
			case <-ctx.Done():
			case <-stop:
			}
			continue
		}
		if task == nil {
			continue
		}

		o.processTask(ctx, task)
	}
}

// Stop signals the loop to exit after the in-flight task, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running && o.stop != nil {
		select {
		case <-o.stop:
		default:
			close(o.stop)
		}
	}
}

// Running reports whether the consume loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) processTask(ctx context.Context, task *queue.Task) {
	ctx = logging.WithTaskID(ctx, task.ID)
	start := time.Now()
	o.recordProcessed()

	tier, err := models.ParseTier(task.Payload.ModelTier)
	if err != nil {
		// Validation normally catches this; a task written by an
		// older producer can still carry an unknown tier.
		tier = models.TierPrimary
	}

	emb, err := o.embedder.Embed(ctx, task.Payload.Text, tier)
	if err != nil {
		o.failTask(ctx, task, fmt.Errorf("embed: %w", err))
		return
	}

	ids, err := o.store.UpsertPoints(ctx,
		vectorstore.Category(task.Payload.Category),
		vectorstore.Layer(task.Payload.Layer),
		[]vectorstore.Item{{
			Text:     task.Payload.Text,
			Vector:   emb.Vector,
			Model:    emb.Model,
			Metadata: task.Payload.Metadata,
		}})
	if err != nil {
		o.failTask(ctx, task, fmt.Errorf("store: %w", err))
		return
	}

	outcome := &TaskOutcome{
		Task:      task,
		Embedding: emb,
		PointIDs:  ids,
		Duration:  time.Since(start),
	}
	o.runAnalyzers(ctx, outcome)

	result, err := json.Marshal(taskResult{
		PointIDs:   ids,
		Model:      emb.Model,
		Dimensions: emb.Dimensions,
		Usage:      emb.Usage,
		DurationMS: outcome.Duration.Milliseconds(),
	})
	if err != nil {
		o.failTask(ctx, task, fmt.Errorf("marshal result: %w", err))
		return
	}

	if err := o.queue.Complete(ctx, task.ID, result); err != nil {
		loopErrors.Inc()
		o.logger.Error(ctx, "completing task failed", zap.Error(err))
		return
	}

	o.recordCompleted(outcome.Duration)
	tasksTotal.WithLabelValues("completed").Inc()
	taskDuration.Observe(outcome.Duration.Seconds())
	o.logger.Info(ctx, "task completed",
		zap.String("model", emb.Model),
		zap.Int("dimensions", emb.Dimensions),
		zap.Duration("took", outcome.Duration))
}

// failTask routes a per-task failure into the queue's retry policy. The
// loop itself never dies on a task failure.
func (o *Orchestrator) failTask(ctx context.Context, task *queue.Task, taskErr error) {
	o.recordFailed()
	tasksTotal.WithLabelValues("failed").Inc()
	o.logger.Warn(ctx, "task failed", zap.Error(taskErr))

	if err := o.queue.Fail(ctx, task.ID, taskErr, true); err != nil {
		loopErrors.Inc()
		o.logger.Error(ctx, "recording task failure failed", zap.Error(err))
	}
}

// Snapshot returns the rolling loop metrics.
func (o *Orchestrator) Snapshot() Metrics {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	m := Metrics{
		Processed: o.processed,
		Completed: o.completed,
		Failed:    o.failed,
	}
	if o.completed > 0 {
		m.AvgLatency = o.totalTime / time.Duration(o.completed)
	}
	return m
}

func (o *Orchestrator) recordProcessed() {
	o.statsMu.Lock()
	o.processed++
	o.statsMu.Unlock()
}

func (o *Orchestrator) recordCompleted(d time.Duration) {
	o.statsMu.Lock()
	o.completed++
	o.totalTime += d
	o.statsMu.Unlock()
}

func (o *Orchestrator) recordFailed() {
	o.statsMu.Lock()
	o.failed++
	o.statsMu.Unlock()
}
