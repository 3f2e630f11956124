package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/embedq/internal/qdrant"
)

const (
	defaultSearchLimit     = 10
	defaultScoreThreshold  = float32(0.7)
	crossSearchConcurrency = 4
)

// SearchOptions tunes a similarity search. The zero value gets the
// default limit and score threshold.
type SearchOptions struct {
	// Limit caps results per namespace. Zero means 10.
	Limit uint64
	// ScoreThreshold drops results scoring below it. Nil means 0.7;
	// point at a negative value to disable the cutoff.
	ScoreThreshold *float32
	// Filter restricts matches by payload.
	Filter *qdrant.Filter
	// WithVectors includes stored vectors in the results.
	WithVectors bool
}

func (o SearchOptions) normalize() SearchOptions {
	if o.Limit == 0 {
		o.Limit = defaultSearchLimit
	}
	if o.ScoreThreshold == nil {
		threshold := defaultScoreThreshold
		o.ScoreThreshold = &threshold
	}
	return o
}

// Match is one search hit with its source namespace.
type Match struct {
	Namespace string                 `json:"namespace"`
	ID        string                 `json:"id"`
	Score     float32                `json:"score"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Vector    []float32              `json:"vector,omitempty"`
}

// CrossNamespaceResult aggregates hits from a multi-namespace search.
type CrossNamespaceResult struct {
	// Matches holds all hits sorted by descending score.
	Matches []Match `json:"matches"`
	// PerNamespace counts hits per searched namespace, including
	// zero-hit namespaces.
	PerNamespace map[string]int `json:"per_namespace"`
	// Errors records namespaces whose search failed; those namespaces
	// are absent from PerNamespace and contribute no matches.
	Errors  map[string]string `json:"errors,omitempty"`
	Summary SearchSummary     `json:"summary"`
}

// SearchSummary condenses a cross-namespace search.
type SearchSummary struct {
	TotalMatches int `json:"total_matches"`
	// BestMatch is the single highest-scoring hit, nil when nothing
	// matched anywhere.
	BestMatch *Match `json:"best_match,omitempty"`
	// AvgScore is the mean of each namespace's top hit score, over
	// namespaces that had at least one hit.
	AvgScore float32 `json:"avg_score"`
}

// SimilaritySearch runs a similarity query against one namespace.
func (s *Store) SimilaritySearch(ctx context.Context, category Category, layer Layer, vector []float32, opts SearchOptions) ([]Match, error) {
	cfg, err := s.lookup(category, layer)
	if err != nil {
		return nil, err
	}
	if len(vector) != cfg.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s expects %d",
			ErrDimensionMismatch, len(vector), cfg.Name, cfg.VectorSize)
	}
	opts = opts.normalize()

	start := time.Now()
	params := qdrant.SearchParams{
		Limit:      opts.Limit,
		Filter:     opts.Filter,
		WithVector: opts.WithVectors,
	}
	if *opts.ScoreThreshold >= 0 {
		params.ScoreThreshold = opts.ScoreThreshold
	}

	points, err := s.client.Search(ctx, cfg.Name, vector, params)
	searchDuration.WithLabelValues(cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		searchTotal.WithLabelValues(cfg.Name, "error").Inc()
		return nil, fmt.Errorf("%w: collection %s: %v", ErrSearchFailed, cfg.Name, err)
	}
	searchTotal.WithLabelValues(cfg.Name, "success").Inc()

	matches := make([]Match, len(points))
	for i, p := range points {
		matches[i] = Match{
			Namespace: cfg.Name,
			ID:        p.ID,
			Score:     p.Score,
			Payload:   p.Payload,
			Vector:    p.Vector,
		}
	}

	s.logger.Debug(ctx, "similarity search",
		zap.String("collection", cfg.Name),
		zap.Int("matches", len(matches)),
		zap.Duration("took", time.Since(start)))
	return matches, nil
}

// CrossNamespaceSearch fans the query out over the given namespaces with
// bounded concurrency and merges the hits. An empty keys slice searches
// every namespace in the store's table. Individual namespace failures do
// not abort the fan-out; they are recorded in the result's Errors map.
func (s *Store) CrossNamespaceSearch(ctx context.Context, keys []NamespaceKey, vector []float32, opts SearchOptions) (*CrossNamespaceResult, error) {
	if len(keys) == 0 {
		keys = s.namespaces.Keys()
	}
	for _, key := range keys {
		if _, ok := s.namespaces[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, key)
		}
	}

	var mu sync.Mutex
	perNamespace := make(map[string]int, len(keys))
	failures := make(map[string]string)
	topScores := make([]float32, 0, len(keys))
	all := make([]Match, 0, len(keys)*int(opts.normalize().Limit))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(crossSearchConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			matches, err := s.SimilaritySearch(gctx, key.Category, key.Layer, vector, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[key.String()] = err.Error()
				s.logger.Warn(gctx, "namespace search failed",
					zap.String("namespace", key.String()),
					zap.Error(err))
				return nil
			}
			perNamespace[key.String()] = len(matches)
			if len(matches) > 0 {
				// Backend results are score-ordered, first is the top hit.
				topScores = append(topScores, matches[0].Score)
			}
			all = append(all, matches...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	result := &CrossNamespaceResult{
		Matches:      all,
		PerNamespace: perNamespace,
		Summary:      SearchSummary{TotalMatches: len(all)},
	}
	if len(failures) > 0 {
		result.Errors = failures
	}
	if len(all) > 0 {
		best := all[0]
		result.Summary.BestMatch = &best
	}
	if len(topScores) > 0 {
		var sum float32
		for _, score := range topScores {
			sum += score
		}
		result.Summary.AvgScore = sum / float32(len(topScores))
	}
	return result, nil
}
