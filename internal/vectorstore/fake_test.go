package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/embedq/internal/qdrant"
)

// fakeClient is an in-memory qdrant.Client with real cosine scoring,
// enough to exercise the store without a backend.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	failOn      map[string]error
	closed      bool
}

type fakeCollection struct {
	vectorSize uint64
	points     map[string]*qdrant.Point
	order      []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: make(map[string]*fakeCollection),
		failOn:      make(map[string]error),
	}
}

func (f *fakeClient) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op] = err
}

func (f *fakeClient) checkFail(op string) error {
	if err, ok := f.failOn[op]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) EnsureCollection(_ context.Context, name string, vectorSize uint64, _ qdrant.Distance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("ensure"); err != nil {
		return err
	}
	if _, ok := f.collections[name]; ok {
		return nil
	}
	f.collections[name] = &fakeCollection{
		vectorSize: vectorSize,
		points:     make(map[string]*qdrant.Point),
	}
	return nil
}

func (f *fakeClient) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeClient) CollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("info:" + name); err != nil {
		return nil, err
	}
	coll, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return &qdrant.CollectionInfo{Name: name, PointsCount: uint64(len(coll.points))}, nil
}

func (f *fakeClient) Upsert(_ context.Context, collection string, points []*qdrant.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("upsert"); err != nil {
		return err
	}
	coll, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	for _, p := range points {
		if _, exists := coll.points[p.ID]; !exists {
			coll.order = append(coll.order, p.ID)
		}
		coll.points[p.ID] = p
	}
	return nil
}

func (f *fakeClient) Search(_ context.Context, collection string, vector []float32, params qdrant.SearchParams) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("search:" + collection); err != nil {
		return nil, err
	}
	if err := f.checkFail("search"); err != nil {
		return nil, err
	}
	coll, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}

	var results []*qdrant.ScoredPoint
	for _, id := range coll.order {
		p := coll.points[id]
		if !matchesFilter(p, params.Filter) {
			continue
		}
		score := cosine(vector, p.Vector)
		if params.ScoreThreshold != nil && score < *params.ScoreThreshold {
			continue
		}
		scored := &qdrant.ScoredPoint{
			Point: qdrant.Point{ID: p.ID, Payload: p.Payload},
			Score: score,
		}
		if params.WithVector {
			scored.Vector = p.Vector
		}
		results = append(results, scored)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if params.Limit > 0 && uint64(len(results)) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

func (f *fakeClient) Delete(_ context.Context, collection string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("delete"); err != nil {
		return err
	}
	coll, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	for _, id := range ids {
		delete(coll.points, id)
	}
	remaining := coll.order[:0]
	for _, id := range coll.order {
		if _, ok := coll.points[id]; ok {
			remaining = append(remaining, id)
		}
	}
	coll.order = remaining
	return nil
}

func (f *fakeClient) SetPayload(_ context.Context, collection, id string, payload map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("setpayload"); err != nil {
		return err
	}
	coll, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	p, ok := coll.points[id]
	if !ok {
		return fmt.Errorf("point %s not found", id)
	}
	for k, v := range payload {
		p.Payload[k] = v
	}
	return nil
}

func (f *fakeClient) Health(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkFail("health")
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func matchesFilter(p *qdrant.Point, filter *qdrant.Filter) bool {
	if filter == nil {
		return true
	}
	for _, cond := range filter.Must {
		if p.Payload[cond.Field] != cond.Match {
			return false
		}
	}
	for _, cond := range filter.MustNot {
		if p.Payload[cond.Field] == cond.Match {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ qdrant.Client = (*fakeClient)(nil)
