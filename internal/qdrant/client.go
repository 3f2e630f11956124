// Package qdrant provides the Qdrant vector database client for embedq.
package qdrant

import (
	"context"
)

// Distance is the similarity metric a collection is created with.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceEuclid Distance = "euclid"
	DistanceDot    Distance = "dot"
)

// Client is the interface to the Qdrant vector database.
type Client interface {
	// EnsureCollection creates the collection if it does not exist.
	// A pre-existing collection with the same name is left untouched;
	// its configuration is NOT checked against the requested one.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64, distance Distance) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CollectionInfo returns point count and status for a collection.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Upsert inserts or updates points in a collection.
	Upsert(ctx context.Context, collection string, points []*Point) error

	// Search performs similarity search in a collection.
	Search(ctx context.Context, collection string, vector []float32, params SearchParams) ([]*ScoredPoint, error)

	// Delete removes points from a collection by id.
	Delete(ctx context.Context, collection string, ids []string) error

	// SetPayload merges payload fields into one point.
	SetPayload(ctx context.Context, collection, id string, payload map[string]interface{}) error

	// Health verifies the backend connection.
	Health(ctx context.Context) error

	// Close closes the client connection.
	Close() error
}

// Point represents a vector point.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search result with its similarity score.
type ScoredPoint struct {
	Point
	Score float32
}

// CollectionInfo holds collection metadata.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
}

// SearchParams tunes a similarity search.
type SearchParams struct {
	// Limit caps the number of results. Zero means backend default.
	Limit uint64
	// ScoreThreshold filters results below the given similarity.
	ScoreThreshold *float32
	// Filter restricts the search to matching payloads.
	Filter *Filter
	// WithVector includes point vectors in the results.
	WithVector bool
}

// Filter represents payload conditions for search operations.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// Condition is one payload condition.
type Condition struct {
	Field string
	Match interface{}
	Range *RangeCondition
}

// RangeCondition is a numeric range filter.
type RangeCondition struct {
	Gte *float64
	Lte *float64
	Gt  *float64
	Lt  *float64
}
