package store

import (
	"context"

	"github.com/pulsoweb/pulso-gateway/internal/record"
)

// Filter selects documents by field equality.
type Filter = record.Document

// Sort orders a Find result by one field. The zero value means unsorted.
type Sort struct {
	Field     string
	Ascending bool
}

// Store is the document-store surface the gateway depends on. Collections
// are logical buckets; no schema is enforced across the records in one.
type Store interface {
	InsertOne(ctx context.Context, collection string, doc record.Document) (id string, err error)
	Find(ctx context.Context, collection string, filter Filter, sort Sort) ([]record.Document, error)
	// FindOne returns (nil, nil) when no document matches.
	FindOne(ctx context.Context, collection string, filter Filter) (record.Document, error)
	// UpdateOne sets the given fields on the first matching document and
	// reports how many documents matched (0 or 1).
	UpdateOne(ctx context.Context, collection string, filter Filter, update record.Document) (matched int64, err error)
}
