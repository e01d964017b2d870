package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

// Store is the persistence interface used by the API server. Every
// collection holds schemaless records keyed by id.
type Store interface {
	// Query returns the records matching q in q.Sort order. A zero Limit
	// returns every match.
	Query(ctx context.Context, collection string, q filter.Query) ([]model.Record, error)
	// Count returns how many records match where.
	Count(ctx context.Context, collection string, where []filter.Condition) (int, error)
	Get(ctx context.Context, collection, id string) (model.Record, error)
	// Put inserts or replaces a record, assigning an id when it has none.
	Put(ctx context.Context, collection string, r model.Record) (model.Record, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// All returns every record of a collection in id order.
func All(ctx context.Context, s Store, collection string) ([]model.Record, error) {
	return s.Query(ctx, collection, filter.Query{})
}

func newID() string { return uuid.New().String() }
