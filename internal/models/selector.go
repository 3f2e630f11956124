// Package models discovers and ranks embedding models on an
// OpenAI-compatible provider and serves embedding requests with a
// tiered fallback.
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/config"
	"github.com/fyrsmithlabs/embedq/internal/logging"
)

var (
	// ErrProviderUnreachable means the model provider did not answer.
	ErrProviderUnreachable = errors.New("models: provider unreachable")

	// ErrNoModels means the catalog holds no embedding-capable model.
	ErrNoModels = errors.New("models: no embedding models available")

	// ErrAllTiersFailed means every tier in the cascade failed.
	ErrAllTiersFailed = errors.New("models: all tiers failed")

	// ErrEmptyInput means the text to embed was empty.
	ErrEmptyInput = errors.New("models: empty input")

	// ErrEmbeddingFailed wraps a single provider embedding failure.
	ErrEmbeddingFailed = errors.New("models: embedding failed")
)

// Tier is a model preference rank.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierTertiary  Tier = "tertiary"
)

// cascadeOrder lists the tiers in fallback order starting from each
// entry tier.
var cascadeOrder = map[Tier][]Tier{
	TierPrimary:   {TierPrimary, TierSecondary, TierTertiary},
	TierSecondary: {TierSecondary, TierTertiary},
	TierTertiary:  {TierTertiary},
}

// ParseTier parses a tier name; empty defaults to primary.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(s)) {
	case "":
		return TierPrimary, nil
	case TierPrimary:
		return TierPrimary, nil
	case TierSecondary:
		return TierSecondary, nil
	case TierTertiary:
		return TierTertiary, nil
	default:
		return "", fmt.Errorf("models: unknown tier %q", s)
	}
}

// ModelDescriptor is one ranked embedding model. Descriptors are
// recomputed on every catalog refresh and never persisted.
type ModelDescriptor struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// Selection is the current tier assignment. Any tier may be nil when
// fewer than three candidates exist.
type Selection struct {
	Primary   *ModelDescriptor `json:"primary,omitempty"`
	Secondary *ModelDescriptor `json:"secondary,omitempty"`
	Tertiary  *ModelDescriptor `json:"tertiary,omitempty"`
}

func (s Selection) forTier(tier Tier) *ModelDescriptor {
	switch tier {
	case TierPrimary:
		return s.Primary
	case TierSecondary:
		return s.Secondary
	case TierTertiary:
		return s.Tertiary
	default:
		return nil
	}
}

// Usage reports provider-side token accounting for one call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Embedding is the result of one embed call.
type Embedding struct {
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Usage      Usage     `json:"usage"`
}

// Selector ranks the provider's embedding models and embeds text with
// automatic tier fallback.
type Selector struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	batchSize  int
	batchPause time.Duration
	logger     *logging.Logger

	mu        sync.RWMutex
	catalog   []ModelDescriptor
	selection Selection
}

// New creates a Selector from the models configuration. The catalog is
// empty until the first RefreshCatalog call.
func New(cfg config.ModelsConfig, logger *logging.Logger) (*Selector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("models: base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("models: logger is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Selector{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     string(cfg.APIKey),
		client:     &http.Client{Timeout: time.Duration(cfg.RequestTimeout)},
		batchSize:  batchSize,
		batchPause: time.Duration(cfg.BatchPause),
		logger:     logger.Named("models"),
	}, nil
}

type modelsListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// RefreshCatalog fetches the provider's model list, keeps the
// embedding-capable entries, scores them, and reassigns the tiers.
func (s *Selector) RefreshCatalog(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnreachable, resp.StatusCode, string(body))
	}

	var list modelsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decoding model list: %w", err)
	}

	catalog := make([]ModelDescriptor, 0, len(list.Data))
	for _, m := range list.Data {
		if !isEmbeddingModel(m.ID) {
			continue
		}
		catalog = append(catalog, ModelDescriptor{ID: m.ID, Score: scoreModel(m.ID)})
	}
	// Descending score, lexicographic id on ties keeps ranking stable
	// across refreshes.
	sort.SliceStable(catalog, func(i, j int) bool {
		if catalog[i].Score != catalog[j].Score {
			return catalog[i].Score > catalog[j].Score
		}
		return catalog[i].ID < catalog[j].ID
	})

	selection := Selection{}
	if len(catalog) > 0 {
		selection.Primary = &catalog[0]
	}
	if len(catalog) > 1 {
		selection.Secondary = &catalog[1]
	}
	if len(catalog) > 2 {
		selection.Tertiary = &catalog[2]
	}

	s.mu.Lock()
	s.catalog = catalog
	s.selection = selection
	s.mu.Unlock()

	catalogSize.Set(float64(len(catalog)))
	s.logger.Info(ctx, "catalog refreshed",
		zap.Int("embedding_models", len(catalog)),
		zap.Any("selection", selection))

	if len(catalog) == 0 {
		return ErrNoModels
	}
	return nil
}

// Catalog returns the ranked embedding models from the last refresh.
func (s *Selector) Catalog() []ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelDescriptor, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// CurrentSelection returns the tier assignment from the last refresh.
func (s *Selector) CurrentSelection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Embed embeds one text, starting at the given tier and falling back
// through the remaining tiers on provider errors. It returns
// ErrAllTiersFailed only after every assigned tier has failed.
func (s *Selector) Embed(ctx context.Context, text string, tier Tier) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	order, ok := cascadeOrder[tier]
	if !ok {
		return nil, fmt.Errorf("models: unknown tier %q", tier)
	}

	selection := s.CurrentSelection()
	var lastErr error
	attempted := 0
	for _, t := range order {
		desc := selection.forTier(t)
		if desc == nil {
			continue
		}
		attempted++

		emb, err := s.embedWith(ctx, desc.ID, text)
		if err != nil {
			lastErr = err
			cascadeFallbacks.WithLabelValues(string(t)).Inc()
			s.logger.Warn(ctx, "tier failed, cascading",
				zap.String("tier", string(t)),
				zap.String("model", desc.ID),
				zap.Error(err))
			continue
		}
		return emb, nil
	}

	if attempted == 0 {
		return nil, ErrNoModels
	}
	return nil, fmt.Errorf("%w: last error: %v", ErrAllTiersFailed, lastErr)
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

func (s *Selector) embedWith(ctx context.Context, model, text string) (*Embedding, error) {
	start := time.Now()

	body, err := json.Marshal(embeddingsRequest{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		embedTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		embedTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("%w: model %s: status %d: %s", ErrEmbeddingFailed, model, resp.StatusCode, string(respBody))
	}

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		embedTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		embedTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("%w: model %s: empty embedding", ErrEmbeddingFailed, model)
	}

	embedTotal.WithLabelValues(model, "success").Inc()
	embedDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	vector := out.Data[0].Embedding
	return &Embedding{
		Vector:     vector,
		Model:      model,
		Dimensions: len(vector),
		Usage:      out.Usage,
	}, nil
}

func (s *Selector) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
