package models

import "strings"

// embeddingPatterns mark a model id as embedding-capable. Matching is
// case-insensitive substring containment.
var embeddingPatterns = []string{
	"embed",
	"bge",
	"gte",
	"e5",
	"nomic",
	"minilm",
	"mxbai",
	"snowflake-arctic",
	"jina",
}

// isEmbeddingModel reports whether the model id looks like an embedding
// model.
func isEmbeddingModel(id string) bool {
	lower := strings.ToLower(id)
	for _, pattern := range embeddingPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// scoreModel assigns a deterministic quality score to an embedding model
// id. The heuristic is purely string-based: size-tier keywords dominate,
// known families add fixed bonuses, version and instruct markers add
// small ones. Ids that tie on score are ordered lexicographically by the
// caller.
func scoreModel(id string) int {
	lower := strings.ToLower(id)
	score := 0

	switch {
	case strings.Contains(lower, "large") || strings.Contains(lower, "-xl"):
		score += 30
	case strings.Contains(lower, "base"):
		score += 20
	case strings.Contains(lower, "small") || strings.Contains(lower, "mini"):
		score += 10
	}

	for pattern, bonus := range familyBonuses {
		if strings.Contains(lower, pattern) {
			score += bonus
		}
	}

	if strings.Contains(lower, "-v2") || strings.Contains(lower, "-v1.5") {
		score += 5
	}
	if strings.Contains(lower, "instruct") {
		score += 3
	}

	return score
}

// familyBonuses reward families with known retrieval quality.
var familyBonuses = map[string]int{
	"bge":              25,
	"gte":              25,
	"mxbai":            20,
	"nomic":            20,
	"snowflake-arctic": 20,
	"jina":             15,
	"e5":               15,
	"minilm":           5,
}
