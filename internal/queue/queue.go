// Package queue implements a Redis-backed priority task queue with
// retry bookkeeping and best-effort completion notifications.
//
// Layout in Redis (prefix configurable, "embedq" shown):
//
//	embedq:queue:{priority}     list, RPUSH on enqueue, LPOP on dequeue
//	embedq:task:{id}            hash holding the task document
//	embedq:processing           set of in-flight task ids
//	embedq:archive:completed    sorted set, score = completion unix time
//	embedq:archive:failed       sorted set, score = terminal failure unix time
//	embedq:events:{id}          pub/sub channel for task notifications
//
// The priority list and the task hash are written in one pipelined round
// trip but NOT inside a cross-key transaction: a crash between the two
// writes can leave them briefly inconsistent, and readers of GetStatus
// may observe stale state for a bounded window.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/logging"
)

var (
	// ErrConnectionFailed indicates the Redis backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to redis")

	// ErrTaskNotFound indicates an operation on an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal indicates a transition on a completed or failed task.
	ErrTaskTerminal = errors.New("task is in a terminal state")

	// ErrInvalidPriority indicates an unknown priority level.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrEnqueueFailed indicates the enqueue write did not reach Redis.
	ErrEnqueueFailed = errors.New("enqueue failed")
)

// Config holds configuration for the queue.
type Config struct {
	// URL is the Redis connection string (redis://host:port/db).
	URL string
	// Password overrides the password from the URL when set.
	Password string
	// KeyPrefix namespaces all keys. Default: "embedq".
	KeyPrefix string
	// MaxRetries is the default per-task retry budget. Default: 3.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "embedq"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Queue is a priority task queue over Redis. All operations are safe for
// concurrent use by multiple processes; dequeue atomicity comes from
// Redis LPOP/BLPOP.
type Queue struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
	logger     *logging.Logger
}

// New connects to Redis and returns a Queue. The connection is verified
// with a ping; an unreachable backend fails construction with
// ErrConnectionFailed.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg.applyDefaults()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %v", ErrConnectionFailed, err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info(ctx, "queue connected",
		zap.String("addr", opts.Addr),
		zap.String("prefix", cfg.KeyPrefix),
	)

	return &Queue{
		rdb:        rdb,
		prefix:     cfg.KeyPrefix,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Ping verifies the backend is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Key helpers

func (q *Queue) listKey(p Priority) string  { return fmt.Sprintf("%s:queue:%s", q.prefix, p) }
func (q *Queue) taskKey(id string) string   { return fmt.Sprintf("%s:task:%s", q.prefix, id) }
func (q *Queue) eventsKey(id string) string { return fmt.Sprintf("%s:events:%s", q.prefix, id) }
func (q *Queue) processingKey() string      { return q.prefix + ":processing" }
func (q *Queue) completedKey() string       { return q.prefix + ":archive:completed" }
func (q *Queue) failedKey() string          { return q.prefix + ":archive:failed" }

// Enqueue appends a task to the tail of its priority list and registers
// it in the tracking hash with status queued. Returns the generated
// task id.
func (q *Queue) Enqueue(ctx context.Context, payload Payload, priority Priority) (string, error) {
	if _, err := ParsePriority(string(priority)); err != nil {
		return "", err
	}

	task := &Task{
		ID:         uuid.NewString(),
		Kind:       "embedding",
		Payload:    payload,
		Priority:   priority,
		Status:     StatusQueued,
		MaxRetries: q.maxRetries,
		CreatedAt:  time.Now().UTC(),
	}

	doc, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling task: %v", ErrEnqueueFailed, err)
	}

	// Hash first, then list: a consumer that pops the id must find the
	// document. Pipelined for one round trip; not a transaction.
	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, q.taskKey(task.ID), "task", doc)
	pipe.RPush(ctx, q.listKey(priority), task.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	tasksEnqueued.WithLabelValues(string(priority)).Inc()
	q.logger.Debug(ctx, "task enqueued",
		zap.String("task_id", task.ID),
		zap.String("priority", string(priority)),
	)

	return task.ID, nil
}

// DequeueNext pops the oldest task from the first non-empty priority
// list, scanning strictly urgent → high → normal → low, and transitions
// it to processing. Returns (nil, nil) when all lists are empty.
// Non-blocking.
func (q *Queue) DequeueNext(ctx context.Context) (*Task, error) {
	for _, p := range Priorities() {
		id, err := q.rdb.LPop(ctx, q.listKey(p)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("popping %s list: %w", p, err)
		}
		return q.markProcessing(ctx, id)
	}
	return nil, nil
}

// WatchBlocking blocks across all priority lists for up to timeout and
// transitions the received task to processing. Returns (nil, nil) on
// timeout.
//
// Priority ordering here is best-effort only: the single BLPOP checks
// keys in argument order per wakeup, so when lists fill while blocked
// the exact tie-break depends on Redis semantics. Strict ordering is
// guaranteed only by DequeueNext.
//
// A consumer that crashes after this call leaves its task in processing
// with no automatic recovery; the processing count in Stats makes such
// tasks observable.
func (q *Queue) WatchBlocking(ctx context.Context, timeout time.Duration) (*Task, error) {
	keys := make([]string, 0, len(Priorities()))
	for _, p := range Priorities() {
		keys = append(keys, q.listKey(p))
	}

	res, err := q.rdb.BLPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blocking pop: %w", err)
	}
	// res is [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("blocking pop: unexpected reply length %d", len(res))
	}
	return q.markProcessing(ctx, res[1])
}

// markProcessing loads a popped task and transitions it to processing.
func (q *Queue) markProcessing(ctx context.Context, id string) (*Task, error) {
	task, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = StatusProcessing
	task.ProcessedAt = &now

	if err := q.storeWith(ctx, task, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, q.processingKey(), id)
	}); err != nil {
		return nil, err
	}

	tasksDequeued.WithLabelValues(string(task.Priority)).Inc()
	return task, nil
}

// Complete marks a task completed, archives it, and publishes a
// completion notification.
func (q *Queue) Complete(ctx context.Context, id string, result json.RawMessage) error {
	task, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, task.Status)
	}

	now := time.Now().UTC()
	task.Status = StatusCompleted
	task.CompletedAt = &now
	task.Result = result

	if err := q.storeWith(ctx, task, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, q.processingKey(), id)
		pipe.ZAdd(ctx, q.completedKey(), redis.Z{Score: float64(now.Unix()), Member: id})
	}); err != nil {
		return err
	}

	tasksCompleted.Inc()
	q.publish(ctx, &Notification{
		Type:      NotificationCompleted,
		TaskID:    id,
		Result:    result,
		Timestamp: now,
	})

	q.logger.Debug(ctx, "task completed", zap.String("task_id", id))
	return nil
}

// Fail records a failure for a task. With retry enabled and budget
// remaining, the task is requeued at the tail of its original priority
// list; otherwise it moves to the terminal failed archive. Failing a
// terminal task returns ErrTaskTerminal.
func (q *Queue) Fail(ctx context.Context, id string, taskErr error, retry bool) error {
	task, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, task.Status)
	}

	now := time.Now().UTC()
	task.Retries++
	task.LastFailedAt = &now
	if taskErr != nil {
		task.LastError = taskErr.Error()
	}

	willRetry := retry && task.Retries < task.MaxRetries
	if willRetry {
		task.Status = StatusQueued
		err = q.storeWith(ctx, task, func(pipe redis.Pipeliner) {
			pipe.SRem(ctx, q.processingKey(), id)
			pipe.RPush(ctx, q.listKey(task.Priority), id)
		})
		if err == nil {
			tasksRetried.WithLabelValues(string(task.Priority)).Inc()
		}
	} else {
		task.Status = StatusFailed
		err = q.storeWith(ctx, task, func(pipe redis.Pipeliner) {
			pipe.SRem(ctx, q.processingKey(), id)
			pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now.Unix()), Member: id})
		})
		if err == nil {
			tasksFailed.Inc()
		}
	}
	if err != nil {
		return err
	}

	q.publish(ctx, &Notification{
		Type:      NotificationFailed,
		TaskID:    id,
		WillRetry: willRetry,
		Error:     task.LastError,
		Timestamp: now,
	})

	q.logger.Warn(ctx, "task failed",
		zap.String("task_id", id),
		zap.Int("retries", task.Retries),
		zap.Int("max_retries", task.MaxRetries),
		zap.Bool("will_retry", willRetry),
		zap.String("error", task.LastError),
	)
	return nil
}

// GetStatus returns the current task document.
func (q *Queue) GetStatus(ctx context.Context, id string) (*Task, error) {
	return q.load(ctx, id)
}

// Stats returns queue depths per priority plus processing and archive
// counts, and refreshes the depth gauges.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.rdb.Pipeline()

	depths := make(map[Priority]*redis.IntCmd, len(Priorities()))
	for _, p := range Priorities() {
		depths[p] = pipe.LLen(ctx, q.listKey(p))
	}
	processing := pipe.SCard(ctx, q.processingKey())
	completed := pipe.ZCard(ctx, q.completedKey())
	failed := pipe.ZCard(ctx, q.failedKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("collecting stats: %w", err)
	}

	stats := &Stats{
		Queued:     make(map[Priority]int64, len(Priorities())),
		Processing: processing.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
	}
	for p, cmd := range depths {
		stats.Queued[p] = cmd.Val()
		queueDepth.WithLabelValues(string(p)).Set(float64(cmd.Val()))
	}

	return stats, nil
}

// Cleanup removes archived completed and failed tasks whose terminal
// timestamp predates the cutoff, deleting their documents. Returns the
// number of tasks removed.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := fmt.Sprintf("%d", time.Now().UTC().Add(-olderThan).Unix())

	removed := 0
	for _, archive := range []string{q.completedKey(), q.failedKey()} {
		ids, err := q.rdb.ZRangeByScore(ctx, archive, &redis.ZRangeBy{
			Min: "-inf",
			Max: cutoff,
		}).Result()
		if err != nil {
			return removed, fmt.Errorf("scanning archive %s: %w", archive, err)
		}
		if len(ids) == 0 {
			continue
		}

		pipe := q.rdb.Pipeline()
		for _, id := range ids {
			pipe.Del(ctx, q.taskKey(id))
		}
		pipe.ZRemRangeByScore(ctx, archive, "-inf", cutoff)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("purging archive %s: %w", archive, err)
		}
		removed += len(ids)
	}

	if removed > 0 {
		q.logger.Info(ctx, "archive cleanup",
			zap.Int("removed", removed),
			zap.Duration("older_than", olderThan),
		)
	}
	return removed, nil
}

// load reads and unmarshals a task document.
func (q *Queue) load(ctx context.Context, id string) (*Task, error) {
	doc, err := q.rdb.HGet(ctx, q.taskKey(id), "task").Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(doc), &task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &task, nil
}

// storeWith writes the task document plus any extra commands in one
// pipelined round trip.
func (q *Queue) storeWith(ctx context.Context, task *Task, extra func(redis.Pipeliner)) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task %s: %w", task.ID, err)
	}

	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, q.taskKey(task.ID), "task", doc)
	if extra != nil {
		extra(pipe)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing task %s: %w", task.ID, err)
	}
	return nil
}

// publish sends a notification on the task's event channel.
// Best-effort: publish errors are logged, never returned.
func (q *Queue) publish(ctx context.Context, n *Notification) {
	msg, err := json.Marshal(n)
	if err != nil {
		q.logger.Warn(ctx, "failed to marshal notification", zap.Error(err))
		return
	}
	if err := q.rdb.Publish(ctx, q.eventsKey(n.TaskID), msg).Err(); err != nil {
		q.logger.Warn(ctx, "failed to publish notification",
			zap.String("task_id", n.TaskID),
			zap.Error(err),
		)
	}
}
