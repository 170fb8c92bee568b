// Package vector owns the searchable representation of books. It is a
// separate store from the catalog; the two share no transaction, and
// ContentVersion on each record is the only consistency signal between them.
package vector

import (
	"context"
)

// Record is the embedding record for one book, tagged with the catalog
// content version the chunk was built from.
type Record struct {
	BookID         string
	ContentVersion int64
	Chunk          string
	Embedding      []float32
}

// Match is one similarity hit. Higher score means more similar; the index's
// internal metric is otherwise opaque to callers.
type Match struct {
	BookID string
	Score  float64
}

// Index supports upsert-by-id, delete-by-id, and top-k similarity query.
type Index interface {
	Upsert(ctx context.Context, record *Record) error
	Delete(ctx context.Context, bookID string) error
	Search(ctx context.Context, embedding []float32, limit int) ([]Match, error)
	// Versions reports the stored content version per indexed book, for
	// staleness detection and repair.
	Versions(ctx context.Context) (map[string]int64, error)
	Close() error
}
