package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEmbeddingModel(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"text-embedding-3-large", true},
		{"BAAI/bge-large-en-v1.5", true},
		{"gte-base", true},
		{"intfloat/e5-large-v2", true},
		{"nomic-embed-text-v1.5", true},
		{"all-MiniLM-L6-v2", true},
		{"mxbai-embed-large", true},
		{"snowflake-arctic-embed-m", true},
		{"jina-embeddings-v2-base-en", true},
		{"llama-3.1-8b-instruct", false},
		{"qwen2.5-coder-7b", false},
		{"whisper-large-v3", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, isEmbeddingModel(tt.id))
		})
	}
}

func TestScoreModelSizeTiers(t *testing.T) {
	large := scoreModel("bge-large-en")
	base := scoreModel("bge-base-en")
	small := scoreModel("bge-small-en")
	assert.Greater(t, large, base)
	assert.Greater(t, base, small)
}

func TestScoreModelFamilyBonus(t *testing.T) {
	// Same size tier, stronger family wins.
	assert.Greater(t, scoreModel("bge-large-en"), scoreModel("some-embed-large"))
}

func TestScoreModelVersionAndInstructMarkers(t *testing.T) {
	assert.Greater(t, scoreModel("e5-large-v2"), scoreModel("e5-large"))
	assert.Greater(t, scoreModel("gte-base-instruct"), scoreModel("gte-base"))
}

func TestScoreModelDeterministic(t *testing.T) {
	first := scoreModel("nomic-embed-text-v1.5")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scoreModel("nomic-embed-text-v1.5"))
	}
}
