package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedq/internal/logging"
)

// setupQueue starts a miniredis instance and returns a connected Queue.
func setupQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	q, err := New(context.Background(), Config{
		URL:        "redis://" + mr.Addr(),
		KeyPrefix:  "embedq-test",
		MaxRetries: 3,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	return mr, q
}

func testPayload(text string) Payload {
	return Payload{
		Text:     text,
		Category: "knowledge",
		Layer:    "backend",
	}
}

func TestNewConnectionFailure(t *testing.T) {
	_, err := New(context.Background(), Config{
		URL: "redis://127.0.0.1:1", // nothing listens here
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	payload := Payload{
		Text:     "hello world",
		Category: "documentation",
		Layer:    "frontend",
		Metadata: map[string]interface{}{"source": "unit-test"},
	}

	id, err := q.Enqueue(ctx, payload, PriorityNormal)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, id, task.ID)
	assert.Equal(t, payload.Text, task.Payload.Text)
	assert.Equal(t, payload.Category, task.Payload.Category)
	assert.Equal(t, payload.Layer, task.Payload.Layer)
	assert.Equal(t, StatusProcessing, task.Status)
	require.NotNil(t, task.ProcessedAt)
}

func TestEnqueueRejectsUnknownPriority(t *testing.T) {
	_, q := setupQueue(t)

	_, err := q.Enqueue(context.Background(), testPayload("x"), Priority("asap"))
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestDequeuePriorityOrdering(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	// Enqueue in the order low, urgent, normal; drain order must be
	// urgent, normal, low.
	lowID, err := q.Enqueue(ctx, testPayload("low"), PriorityLow)
	require.NoError(t, err)
	urgentID, err := q.Enqueue(ctx, testPayload("urgent"), PriorityUrgent)
	require.NoError(t, err)
	normalID, err := q.Enqueue(ctx, testPayload("normal"), PriorityNormal)
	require.NoError(t, err)

	var order []string
	for i := 0; i < 3; i++ {
		task, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)
		order = append(order, task.ID)
	}

	assert.Equal(t, []string{urgentID, normalID, lowID}, order)
}

func TestDequeueFIFOWithinLevel(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	firstID, err := q.Enqueue(ctx, testPayload("first"), PriorityHigh)
	require.NoError(t, err)
	secondID, err := q.Enqueue(ctx, testPayload("second"), PriorityHigh)
	require.NoError(t, err)

	first, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	second, err := q.DequeueNext(ctx)
	require.NoError(t, err)

	assert.Equal(t, firstID, first.ID)
	assert.Equal(t, secondID, second.ID)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	_, q := setupQueue(t)

	task, err := q.DequeueNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestWatchBlockingReceivesTask(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("watched"), PriorityUrgent)
	require.NoError(t, err)

	task, err := q.WatchBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, StatusProcessing, task.Status)
}

func TestWatchBlockingTimeout(t *testing.T) {
	_, q := setupQueue(t)

	start := time.Now()
	task, err := q.WatchBlocking(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestCompleteArchivesAndPublishes(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("done"), PriorityNormal)
	require.NoError(t, err)

	// Subscribe before completing; pub/sub has no replay.
	notifications, cancel, err := q.SubscribeResult(ctx, id)
	require.NoError(t, err)
	defer cancel()

	_, err = q.DequeueNext(ctx)
	require.NoError(t, err)

	result := json.RawMessage(`{"points":1}`)
	require.NoError(t, q.Complete(ctx, id, result))

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.JSONEq(t, `{"points":1}`, string(task.Result))

	select {
	case n := <-notifications:
		assert.Equal(t, NotificationCompleted, n.Type)
		assert.Equal(t, id, n.TaskID)
		assert.JSONEq(t, `{"points":1}`, string(n.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion notification")
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestCompleteUnknownTask(t *testing.T) {
	_, q := setupQueue(t)

	err := q.Complete(context.Background(), "no-such-task", nil)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestFailRetryBound(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("flaky"), PriorityNormal)
	require.NoError(t, err)

	boom := errors.New("embed timeout")

	// Failures 1 and 2 requeue; failure 3 exhausts maxRetries=3.
	for attempt := 1; attempt <= 2; attempt++ {
		task, err := q.DequeueNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)

		require.NoError(t, q.Fail(ctx, id, boom, true))

		task, err = q.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusQueued, task.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, task.Retries)
		assert.Equal(t, "embed timeout", task.LastError)
	}

	_, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, boom, true))

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 3, task.Retries)

	// Fourth fail on a terminal task is rejected.
	err = q.Fail(ctx, id, boom, true)
	assert.ErrorIs(t, err, ErrTaskTerminal)
}

func TestFailWithoutRetryIsTerminal(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("fatal"), PriorityHigh)
	require.NoError(t, err)
	_, err = q.DequeueNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, id, errors.New("dimension mismatch"), false))

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 1, task.Retries)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestFailedTaskRemainsQueryable(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("keep me"), PriorityLow)
	require.NoError(t, err)
	_, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, errors.New("all tiers failed"), false))

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "all tiers failed", task.LastError)
	assert.Equal(t, 1, task.Retries)
}

func TestStats(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, testPayload("n"), PriorityNormal)
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, testPayload("u"), PriorityUrgent)
	require.NoError(t, err)

	_, err = q.DequeueNext(ctx) // takes the urgent one
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Queued[PriorityNormal])
	assert.Equal(t, int64(0), stats.Queued[PriorityUrgent])
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(3), stats.Total())
}

func TestCleanupRemovesOldArchivedTasks(t *testing.T) {
	mr, q := setupQueue(t)
	ctx := context.Background()

	oldID, err := q.Enqueue(ctx, testPayload("old"), PriorityNormal)
	require.NoError(t, err)
	freshID, err := q.Enqueue(ctx, testPayload("fresh"), PriorityNormal)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = q.DequeueNext(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, q.Complete(ctx, oldID, nil))
	require.NoError(t, q.Complete(ctx, freshID, nil))

	// Backdate the old task's archive entry by 10 days.
	backdated := float64(time.Now().UTC().Add(-10 * 24 * time.Hour).Unix())
	mr.ZAdd("embedq-test:archive:completed", backdated, oldID)

	removed, err := q.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = q.GetStatus(ctx, oldID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	task, err := q.GetStatus(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestFailurePublishesRetryDecision(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testPayload("notify"), PriorityNormal)
	require.NoError(t, err)

	notifications, cancel, err := q.SubscribeResult(ctx, id)
	require.NoError(t, err)
	defer cancel()

	_, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, errors.New("transient"), true))

	select {
	case n := <-notifications:
		assert.Equal(t, NotificationFailed, n.Type)
		assert.True(t, n.WillRetry)
		assert.Equal(t, "transient", n.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure notification")
	}
}
