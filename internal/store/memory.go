package store

import (
	"context"
	"sync"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]model.Record // collection -> id -> record
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]model.Record{}}
}

func (m *Memory) snapshot(collection string) []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Record, 0, len(m.docs[collection]))
	for _, r := range m.docs[collection] {
		out = append(out, r)
	}
	return out
}

func (m *Memory) Query(ctx context.Context, collection string, q filter.Query) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, _ := filter.Apply(m.snapshot(collection), q)
	out := make([]model.Record, len(page))
	for i, r := range page {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, collection string, where []filter.Condition) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range m.snapshot(collection) {
		if filter.Match(r, where) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Put(ctx context.Context, collection string, r model.Record) (model.Record, error) {
	r = r.Clone()
	if r.ID() == "" {
		r["id"] = newID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = map[string]model.Record{}
	}
	m.docs[collection][r.ID()] = r
	return r.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.docs[collection], id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
