package ingest

import (
	"context"
	"time"

	"github.com/pulsoweb/pulso-gateway/internal/record"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

// Correlation and bookkeeping field names shared by every logical collection.
const (
	FieldSession   = "sessionId"
	FieldProduct   = "produto"
	FieldCreatedAt = "createdAt"
)

// Gateway appends schema-less documents to logical collections, stamping the
// server-side creation timestamp. It is the only write path into the store
// for telemetry records.
type Gateway struct {
	store store.Store
}

func NewGateway(st store.Store) *Gateway {
	return &Gateway{store: st}
}

// Append validates the correlation pair, stamps createdAt, and performs one
// durable write. The returned document is the stored record, including the
// assigned id and timestamp.
func (g *Gateway) Append(ctx context.Context, collection string, doc record.Document) (record.Document, error) {
	if _, ok := doc.String(FieldSession); !ok {
		return nil, &ValidationError{Field: FieldSession}
	}
	if _, ok := doc.String(FieldProduct); !ok {
		return nil, &ValidationError{Field: FieldProduct}
	}

	stored := doc.Clone()
	stored[FieldCreatedAt] = time.Now().UTC()

	id, err := g.store.InsertOne(ctx, collection, stored)
	if err != nil {
		return nil, &StorageError{Op: "insert", Collection: collection, Err: err}
	}
	stored["_id"] = id
	return stored, nil
}
