package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"landdev/internal/domain"
	"landdev/internal/shared"
)

// ---- fakes ----

type fakeRecords struct {
	mu      sync.Mutex
	rows    map[int64]domain.Record
	updates []domain.Changes
	inserts [][]domain.Assignment
	lists   []domain.ListQuery
	updErr  error
	nextID  int64
}

func newFakeRecords() *fakeRecords { return &fakeRecords{rows: map[int64]domain.Record{}, nextID: 1} }

func (f *fakeRecords) GetByID(ctx context.Context, e *domain.Entity, id int64) (domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := domain.Record{}
	for k, v := range r {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRecords) List(ctx context.Context, e *domain.Entity, q domain.ListQuery) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, q)
	out := []domain.Record{}
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) Insert(ctx context.Context, e *domain.Entity, values []domain.Assignment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, values)
	id := f.nextID
	f.nextID++
	rec := domain.Record{"id": id}
	for _, a := range domain.ApplyDerivations(e, domain.Changes{Primary: values}, nil).Primary {
		rec[a.Field.Name] = a.Value
	}
	f.rows[id] = rec
	return id, nil
}

func (f *fakeRecords) UpdateFields(ctx context.Context, e *domain.Entity, id int64, ch domain.Changes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	rec, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.updates = append(f.updates, ch)
	for _, a := range append(ch.Primary, ch.Core...) {
		rec[a.Field.Name] = a.Value
	}
	return nil
}

func (f *fakeRecords) Delete(ctx context.Context, e *domain.Entity, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

var errStorage = errors.New("storage unavailable")

// fakeReviews enforces the ingestion uniqueness key like the reviews table does.
type fakeReviews struct {
	mu       sync.Mutex
	rows     []domain.StoredReview
	seen     map[string]bool
	failOn   string // reviewer name whose insert fails with a storage error
	deleted  int64
	dedupErr error
}

func newFakeReviews() *fakeReviews { return &fakeReviews{seen: map[string]bool{}} }

func (f *fakeReviews) InsertIfAbsent(ctx context.Context, r domain.StoredReview) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && r.ReviewerName != nil && *r.ReviewerName == f.failOn {
		return false, errStorage
	}
	k := r.PropertyName + "|" + deref(r.ReviewerName) + "|" + deref(r.ReviewText)
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	r.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, r)
	return true, nil
}

func (f *fakeReviews) RankAndDeleteDuplicates(ctx context.Context) (int64, error) {
	return f.deleted, f.dedupErr
}

func (f *fakeReviews) ListReviews(ctx context.Context, q domain.ReviewQuery) ([]domain.StoredReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.StoredReview{}
	for _, r := range f.rows {
		if q.Property == nil || *q.Property == r.PropertyName {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviews) ListDedupeCandidates(ctx context.Context) ([]domain.StoredReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StoredReview(nil), f.rows...), nil
}

// fakeCache round-trips through JSON like the redis adapter.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}

type fakeScraper struct {
	payload []map[string]any
	err     error
}

func (s *fakeScraper) GetReviews(ctx context.Context, src domain.ReviewSource) ([]map[string]any, error) {
	return s.payload, s.err
}

// ---- helpers ----

func registry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := shared.LoadRegistry()
	require.NoError(t, err, "load registry")
	return reg
}

func spec(t *testing.T, m map[string]any) domain.FieldUpdateSpec {
	t.Helper()
	out := domain.FieldUpdateSpec{}
	for k, v := range m {
		b, err := json.Marshal(v)
		require.NoError(t, err, "marshal %s", k)
		out[k] = b
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
