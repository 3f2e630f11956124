package models

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatchPreservesOrder(t *testing.T) {
	stub := &providerStub{models: []string{"bge-large-en"}, dimensions: 2}
	sel := newTestSelector(t, stub)
	require.NoError(t, sel.RefreshCatalog(context.Background()))

	texts := make([]string, 5)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d padded to length %d", i, i)
	}

	results, err := sel.EmbedBatch(context.Background(), texts, TierPrimary)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, emb := range results {
		require.NotNil(t, emb, "result %d missing", i)
		// The stub derives vector values from input length, so order
		// is observable.
		assert.Equal(t, float32(len(texts[i]))*0.01, emb.Vector[0])
	}
	assert.Equal(t, int64(5), stub.embedCalls.Load())
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	stub := &providerStub{models: []string{"bge-large-en"}}
	sel := newTestSelector(t, stub)
	require.NoError(t, sel.RefreshCatalog(context.Background()))

	_, err := sel.EmbedBatch(context.Background(), nil, TierPrimary)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = sel.EmbedBatch(context.Background(), []string{"ok", ""}, TierPrimary)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedBatchFailsWhenCascadeExhausted(t *testing.T) {
	stub := &providerStub{
		models:     []string{"bge-large-en"},
		failModels: map[string]bool{"bge-large-en": true},
	}
	sel := newTestSelector(t, stub)
	require.NoError(t, sel.RefreshCatalog(context.Background()))

	_, err := sel.EmbedBatch(context.Background(), []string{"a", "b", "c"}, TierPrimary)
	assert.ErrorIs(t, err, ErrAllTiersFailed)
}

func TestEmbedBatchSingleItem(t *testing.T) {
	stub := &providerStub{models: []string{"bge-large-en"}, dimensions: 2}
	sel := newTestSelector(t, stub)
	require.NoError(t, sel.RefreshCatalog(context.Background()))

	results, err := sel.EmbedBatch(context.Background(), []string{"solo"}, TierPrimary)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bge-large-en", results[0].Model)
}
