package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/embedq/internal/models"
	"github.com/fyrsmithlabs/embedq/internal/queue"
	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  []*queue.Task
	enqueued []*queue.Task

	completed map[string]json.RawMessage
	failed    map[string]error

	enqueueErr error
	watchErr   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		completed: make(map[string]json.RawMessage),
		failed:    make(map[string]error),
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, payload queue.Payload, priority queue.Priority) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	task := &queue.Task{
		ID:       uuid.New().String(),
		Kind:     "embedding",
		Payload:  payload,
		Priority: priority,
		Status:   queue.StatusQueued,
	}
	q.pending = append(q.pending, task)
	q.enqueued = append(q.enqueued, task)
	return task.ID, nil
}

func (q *fakeQueue) WatchBlocking(ctx context.Context, timeout time.Duration) (*queue.Task, error) {
	q.mu.Lock()
	if q.watchErr != nil {
		err := q.watchErr
		q.watchErr = nil
		q.mu.Unlock()
		return nil, err
	}
	if len(q.pending) > 0 {
		task := q.pending[0]
		q.pending = q.pending[1:]
		task.Status = queue.StatusProcessing
		q.mu.Unlock()
		return task, nil
	}
	q.mu.Unlock()

	select {
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *fakeQueue) Complete(_ context.Context, id string, result json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[id] = result
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, id string, taskErr error, _ bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = taskErr
	return nil
}

func (q *fakeQueue) Stats(context.Context) (*queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &queue.Stats{
		Queued:    map[queue.Priority]int64{queue.PriorityNormal: int64(len(q.pending))},
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
	}, nil
}

func (q *fakeQueue) completedResult(id string) (json.RawMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	result, ok := q.completed[id]
	return result, ok
}

func (q *fakeQueue) failedErr(id string) (error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	err, ok := q.failed[id]
	return err, ok
}

type fakeEmbedder struct {
	mu         sync.Mutex
	dimensions int
	err        error
	calls      int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string, _ models.Tier) (*models.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	dims := e.dimensions
	if dims == 0 {
		dims = 3
	}
	vector := make([]float32, dims)
	for i := range vector {
		vector[i] = float32(len(text))
	}
	return &models.Embedding{
		Vector:     vector,
		Model:      "fake-embed",
		Dimensions: dims,
		Usage:      models.Usage{PromptTokens: 1, TotalTokens: 1},
	}, nil
}

type upsertCall struct {
	category vectorstore.Category
	layer    vectorstore.Layer
	items    []vectorstore.Item
}

type fakeStore struct {
	mu         sync.Mutex
	namespaces vectorstore.Namespaces
	upserts    []upsertCall
	upsertErr  error

	searchResult *vectorstore.CrossNamespaceResult
	searchErr    error
	searchedKeys []vectorstore.NamespaceKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{namespaces: vectorstore.DefaultNamespaces(3)}
}

func (s *fakeStore) UpsertPoints(_ context.Context, category vectorstore.Category, layer vectorstore.Layer, items []vectorstore.Item) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserts = append(s.upserts, upsertCall{category: category, layer: layer, items: items})
	ids := make([]string, len(items))
	for i := range ids {
		ids[i] = fmt.Sprintf("point-%d-%d", len(s.upserts), i)
	}
	return ids, nil
}

func (s *fakeStore) CrossNamespaceSearch(_ context.Context, keys []vectorstore.NamespaceKey, _ []float32, _ vectorstore.SearchOptions) (*vectorstore.CrossNamespaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.searchedKeys = keys
	if s.searchResult != nil {
		return s.searchResult, nil
	}
	return &vectorstore.CrossNamespaceResult{PerNamespace: map[string]int{}}, nil
}

func (s *fakeStore) Namespaces() vectorstore.Namespaces {
	return s.namespaces
}

func (s *fakeStore) upsertsTo(category vectorstore.Category) []upsertCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []upsertCall
	for _, call := range s.upserts {
		if call.category == category {
			out = append(out, call)
		}
	}
	return out
}
