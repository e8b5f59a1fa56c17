// Package vectorstore defines the VectorStore capability consumed by the
// retrieval engine and provides a Qdrant-backed implementation.
package vectorstore

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any failure talking to the vector backend so callers
// can degrade to keyword-only retrieval instead of failing the whole query.
var ErrUnavailable = errors.New("vectorstore: unavailable")

// Filter is a metadata predicate evaluated against payload fields stored
// alongside a vector. Construction helpers below (Gte, Lte, In, Contains,
// And, Or) build the supported operator set; a zero Filter is rejected with
// an error (an empty Store.Query where-clause is expressed as a nil *Filter,
// not a zero Filter).
type Filter struct {
	Field    string
	Gte      *float64
	Lte      *float64
	In       []string
	Contains *string
	And      []Filter
	Or       []Filter
}

// GteFilter builds a "field >= value" condition.
func GteFilter(field string, value float64) Filter {
	return Filter{Field: field, Gte: &value}
}

// LteFilter builds a "field <= value" condition.
func LteFilter(field string, value float64) Filter {
	return Filter{Field: field, Lte: &value}
}

// InFilter builds a "field is one of values" condition.
func InFilter(field string, values ...string) Filter {
	return Filter{Field: field, In: values}
}

// ContainsFilter builds a "field (array) contains value" condition.
func ContainsFilter(field, value string) Filter {
	return Filter{Field: field, Contains: &value}
}

// AndFilter combines sub-filters with logical AND.
func AndFilter(filters ...Filter) Filter {
	return Filter{And: filters}
}

// OrFilter combines sub-filters with logical OR.
func OrFilter(filters ...Filter) Filter {
	return Filter{Or: filters}
}

// Hit is a single scored match returned by Query.
type Hit struct {
	ID       string
	Distance float64
	Meta     map[string]any
}

// Store is the VectorStore capability: a content-addressable nearest-neighbor
// index keyed by decision ID, with metadata filtering on query.
type Store interface {
	// Initialize creates the backing collection if it does not already exist.
	Initialize(ctx context.Context) error

	// Upsert inserts or replaces a single vector with its document text and
	// metadata, keyed by id (the decision's content-derived ID).
	Upsert(ctx context.Context, id string, doc string, vec []float32, meta map[string]any) error

	// Query returns the n nearest vectors to vec, optionally restricted by
	// where. where is nil to mean "no filter".
	Query(ctx context.Context, vec []float32, n int, where *Filter) ([]Hit, error)

	// Delete removes vectors by ID. A no-op for IDs that don't exist.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of vectors currently stored.
	Count(ctx context.Context) (int, error)

	// Reset removes all vectors; afterwards the collection exists and is
	// empty.
	Reset(ctx context.Context) error

	// CollectionID returns the backend-specific name/identifier of the
	// collection this Store writes to, for diagnostics and admin operations.
	CollectionID() string
}
