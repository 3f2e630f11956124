package vectorstore

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/embedq/internal/qdrant"
)

// Layer splits the namespace space by application tier.
type Layer string

const (
	LayerFrontend Layer = "frontend"
	LayerBackend  Layer = "backend"
)

// Layers returns all known layers.
func Layers() []Layer {
	return []Layer{LayerFrontend, LayerBackend}
}

// Category is the semantic category of stored embeddings.
type Category string

const (
	CategoryKnowledge      Category = "knowledge"
	CategoryDocumentation  Category = "documentation"
	CategorySummaries      Category = "completion_summaries"
	CategoryRepositories   Category = "repositories"
	CategoryIndexes        Category = "indexes"
	CategoryTasks          Category = "tasks"
	CategoryConfidence     Category = "confidence"
	CategoryProblemSolving Category = "problem_solving"
)

// Categories returns all known categories.
func Categories() []Category {
	return []Category{
		CategoryKnowledge,
		CategoryDocumentation,
		CategorySummaries,
		CategoryRepositories,
		CategoryIndexes,
		CategoryTasks,
		CategoryConfidence,
		CategoryProblemSolving,
	}
}

// NamespaceKey identifies one (category, layer) namespace.
type NamespaceKey struct {
	Category Category
	Layer    Layer
}

// String returns the canonical collection name for the namespace.
func (k NamespaceKey) String() string {
	return fmt.Sprintf("%s_%s", k.Category, k.Layer)
}

// CollectionConfig fixes a namespace collection's physical parameters.
// VectorSize and Distance are immutable for the collection's lifetime.
type CollectionConfig struct {
	Name       string
	VectorSize int
	Distance   qdrant.Distance
}

// Namespaces maps namespace keys to their collection configuration.
// The map is fixed at construction; callers must not mutate it after
// handing it to a Store.
type Namespaces map[NamespaceKey]CollectionConfig

// DefaultNamespaces builds the standard 16-namespace table (8 categories
// x 2 layers), every collection sharing one vector size and cosine
// distance.
func DefaultNamespaces(vectorSize int) Namespaces {
	ns := make(Namespaces, len(Categories())*len(Layers()))
	for _, category := range Categories() {
		for _, layer := range Layers() {
			key := NamespaceKey{Category: category, Layer: layer}
			ns[key] = CollectionConfig{
				Name:       key.String(),
				VectorSize: vectorSize,
				Distance:   qdrant.DistanceCosine,
			}
		}
	}
	return ns
}

// Contains reports whether the (category, layer) pair is a known
// namespace.
func (n Namespaces) Contains(category Category, layer Layer) bool {
	_, ok := n[NamespaceKey{Category: category, Layer: layer}]
	return ok
}

// Keys returns all namespace keys in deterministic order.
func (n Namespaces) Keys() []NamespaceKey {
	keys := make([]NamespaceKey, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Layer < keys[j].Layer
	})
	return keys
}
