package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/models"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

// FeedbackReport is the result of an ad-hoc cross-namespace analysis of
// a query against the stored embeddings.
type FeedbackReport struct {
	Query          string         `json:"query"`
	Model          string         `json:"model"`
	TotalMatches   int            `json:"total_matches"`
	AvgTopScore    float32        `json:"avg_top_score"`
	BestNamespace  string         `json:"best_namespace,omitempty"`
	BestScore      float32        `json:"best_score,omitempty"`
	PerNamespace   map[string]int `json:"per_namespace"`
	Recommendation string         `json:"recommendation"`
	Took           time.Duration  `json:"took"`
}

// FeedbackAnalysis embeds the query and fans a similarity search across
// the requested categories on both layers, condensing the outcome into
// a coarse recommendation. The recommendation wording is heuristic, not
// a stable contract.
func (o *Orchestrator) FeedbackAnalysis(ctx context.Context, queryText string, categories []vectorstore.Category) (*FeedbackReport, error) {
	if queryText == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidPayload)
	}
	start := time.Now()

	emb, err := o.embedder.Embed(ctx, queryText, models.TierPrimary)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var keys []vectorstore.NamespaceKey
	if len(categories) == 0 {
		keys = o.store.Namespaces().Keys()
	} else {
		namespaces := o.store.Namespaces()
		for _, category := range categories {
			for _, layer := range vectorstore.Layers() {
				key := vectorstore.NamespaceKey{Category: category, Layer: layer}
				if _, ok := namespaces[key]; !ok {
					return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidPayload, category)
				}
				keys = append(keys, key)
			}
		}
	}

	result, err := o.store.CrossNamespaceSearch(ctx, keys, emb.Vector, vectorstore.SearchOptions{})
	if err != nil {
		return nil, fmt.Errorf("cross-namespace search: %w", err)
	}

	report := &FeedbackReport{
		Query:        queryText,
		Model:        emb.Model,
		TotalMatches: result.Summary.TotalMatches,
		AvgTopScore:  result.Summary.AvgScore,
		PerNamespace: result.PerNamespace,
		Took:         time.Since(start),
	}
	if result.Summary.BestMatch != nil {
		report.BestNamespace = result.Summary.BestMatch.Namespace
		report.BestScore = result.Summary.BestMatch.Score
	}
	report.Recommendation = recommend(result.Summary)

	o.logger.Debug(ctx, "feedback analysis",
		zap.Int("matches", report.TotalMatches),
		zap.String("recommendation", report.Recommendation))
	return report, nil
}

func recommend(summary vectorstore.SearchSummary) string {
	switch {
	case summary.TotalMatches == 0:
		return "no related context found; treat the query as novel"
	case summary.AvgScore >= 0.9:
		return "strong prior coverage; reuse existing context before generating new embeddings"
	case summary.AvgScore >= 0.75:
		return "moderate prior coverage; related context exists but may be incomplete"
	default:
		return "weak prior coverage; consider enqueueing the source material"
	}
}
