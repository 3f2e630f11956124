package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TaskIDFromContext(ctx))

	ctx = WithTaskID(ctx, "task-123")
	assert.Equal(t, "task-123", TaskIDFromContext(ctx))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
}

func TestContextFieldsIncludeTaskID(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithTaskID(context.Background(), "task-abc")

	tl.Info(ctx, "processing")

	tl.AssertField(t, "processing", "task.id", "task-abc")
}

func TestContextFieldsEmptyContext(t *testing.T) {
	fields := ContextFields(context.Background())
	assert.Empty(t, fields)
}

func TestLoggerFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	got := FromContext(ctx)
	require.Same(t, tl.Logger, got)

	// Missing logger falls back to nop, never nil.
	require.NotNil(t, FromContext(context.Background()))
}
