// Package vectorstore manages namespaced embedding collections on top of
// the Qdrant client. Each (category, layer) pair maps to one collection;
// the namespace table is injected at construction and fixed afterwards.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/logging"
	"github.com/fyrsmithlabs/embedq/internal/qdrant"
)

var (
	// ErrUnknownNamespace means the (category, layer) pair is not in the
	// store's namespace table.
	ErrUnknownNamespace = errors.New("vectorstore: unknown namespace")

	// ErrDimensionMismatch means a vector's length does not match the
	// namespace's configured vector size.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

	// ErrUpsertFailed wraps backend errors during point upserts.
	ErrUpsertFailed = errors.New("vectorstore: upsert failed")

	// ErrSearchFailed wraps backend errors during similarity search.
	ErrSearchFailed = errors.New("vectorstore: search failed")
)

// Item is one embedding to persist: the vector plus the source text and
// caller metadata that become the point payload.
type Item struct {
	// ID is optional; empty ids get a generated uuid.
	ID       string
	Text     string
	Vector   []float32
	Model    string
	Metadata map[string]interface{}
}

// NamespaceStats reports one namespace's point count. Error is set,
// and the count is zero, when the namespace could not be reached.
type NamespaceStats struct {
	Namespace   string `json:"namespace"`
	PointsCount uint64 `json:"points_count"`
	Error       string `json:"error,omitempty"`
}

// Store provides namespaced vector persistence and search.
type Store struct {
	client     qdrant.Client
	namespaces Namespaces
	logger     *logging.Logger
}

// New creates a Store over the given client and namespace table.
func New(client qdrant.Client, namespaces Namespaces, logger *logging.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("vectorstore: client is required")
	}
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("vectorstore: at least one namespace is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("vectorstore: logger is required")
	}
	return &Store{
		client:     client,
		namespaces: namespaces,
		logger:     logger.Named("vectorstore"),
	}, nil
}

// Namespaces returns the store's namespace table.
func (s *Store) Namespaces() Namespaces {
	return s.namespaces
}

// EnsureCollections creates every namespace collection that does not
// exist yet. Existing collections are left as-is, even if their
// configuration differs from the table.
func (s *Store) EnsureCollections(ctx context.Context) error {
	for _, key := range s.namespaces.Keys() {
		cfg := s.namespaces[key]
		if err := s.client.EnsureCollection(ctx, cfg.Name, uint64(cfg.VectorSize), cfg.Distance); err != nil {
			return fmt.Errorf("ensure collection %s: %w", cfg.Name, err)
		}
	}
	s.logger.Info(ctx, "collections ready", zap.Int("count", len(s.namespaces)))
	return nil
}

// UpsertPoints stores items in the namespace collection and returns the
// generated point ids, in item order. All vectors must match the
// namespace's vector size; a single mismatch rejects the whole batch
// before anything is written.
func (s *Store) UpsertPoints(ctx context.Context, category Category, layer Layer, items []Item) ([]string, error) {
	cfg, err := s.lookup(category, layer)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, len(items))
	points := make([]*qdrant.Point, len(items))
	for i, item := range items {
		if len(item.Vector) != cfg.VectorSize {
			return nil, fmt.Errorf("%w: item %d has %d dimensions, collection %s expects %d",
				ErrDimensionMismatch, i, len(item.Vector), cfg.Name, cfg.VectorSize)
		}

		payload := map[string]interface{}{
			"text":       item.Text,
			"category":   string(category),
			"layer":      string(layer),
			"model":      item.Model,
			"dimensions": int64(len(item.Vector)),
			"timestamp":  now,
		}
		for k, v := range item.Metadata {
			// Caller metadata never overrides the reserved fields.
			if _, reserved := payload[k]; reserved {
				continue
			}
			payload[k] = v
		}

		ids[i] = item.ID
		if ids[i] == "" {
			ids[i] = uuid.New().String()
		}
		points[i] = &qdrant.Point{
			ID:      ids[i],
			Vector:  item.Vector,
			Payload: payload,
		}
	}

	if err := s.client.Upsert(ctx, cfg.Name, points); err != nil {
		upsertTotal.WithLabelValues(cfg.Name, "error").Inc()
		return nil, fmt.Errorf("%w: collection %s: %v", ErrUpsertFailed, cfg.Name, err)
	}
	upsertTotal.WithLabelValues(cfg.Name, "success").Inc()

	s.logger.Debug(ctx, "points upserted",
		zap.String("collection", cfg.Name),
		zap.Int("count", len(points)))
	return ids, nil
}

// DeletePoints removes points by id from the namespace collection.
func (s *Store) DeletePoints(ctx context.Context, category Category, layer Layer, ids []string) error {
	cfg, err := s.lookup(category, layer)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.Delete(ctx, cfg.Name, ids); err != nil {
		return fmt.Errorf("delete points from %s: %w", cfg.Name, err)
	}
	s.logger.Debug(ctx, "points deleted",
		zap.String("collection", cfg.Name),
		zap.Int("count", len(ids)))
	return nil
}

// UpdatePayload merges payload fields into one existing point. The
// point's vector is untouched.
func (s *Store) UpdatePayload(ctx context.Context, category Category, layer Layer, id string, payload map[string]interface{}) error {
	cfg, err := s.lookup(category, layer)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if err := s.client.SetPayload(ctx, cfg.Name, id, payload); err != nil {
		return fmt.Errorf("update payload in %s: %w", cfg.Name, err)
	}
	return nil
}

// Stats returns the point count for one namespace.
func (s *Store) Stats(ctx context.Context, category Category, layer Layer) (*NamespaceStats, error) {
	cfg, err := s.lookup(category, layer)
	if err != nil {
		return nil, err
	}
	info, err := s.client.CollectionInfo(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("collection info %s: %w", cfg.Name, err)
	}
	pointsStored.WithLabelValues(cfg.Name).Set(float64(info.PointsCount))
	return &NamespaceStats{Namespace: cfg.Name, PointsCount: info.PointsCount}, nil
}

// AllStats returns one entry per namespace. A namespace whose backend
// call fails gets its error recorded in place of a count instead of
// failing the whole report.
func (s *Store) AllStats(ctx context.Context) []NamespaceStats {
	stats := make([]NamespaceStats, 0, len(s.namespaces))
	for _, key := range s.namespaces.Keys() {
		ns, err := s.Stats(ctx, key.Category, key.Layer)
		if err != nil {
			s.logger.Warn(ctx, "namespace stats unavailable",
				zap.String("namespace", key.String()),
				zap.Error(err))
			stats = append(stats, NamespaceStats{Namespace: key.String(), Error: err.Error()})
			continue
		}
		stats = append(stats, *ns)
	}
	return stats
}

// Health verifies the backend connection.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) lookup(category Category, layer Layer) (CollectionConfig, error) {
	cfg, ok := s.namespaces[NamespaceKey{Category: category, Layer: layer}]
	if !ok {
		return CollectionConfig{}, fmt.Errorf("%w: %s/%s", ErrUnknownNamespace, category, layer)
	}
	return cfg, nil
}
