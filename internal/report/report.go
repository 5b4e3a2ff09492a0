package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/pulsoweb/pulso-gateway/internal/ingest"
	"github.com/pulsoweb/pulso-gateway/internal/record"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

// AggregationError means one of the composite report's sub-reads failed.
// There is no partial report: the whole call fails.
type AggregationError struct {
	Collection string
	Err        error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Collection, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Report is the composite read-model for one session/product pair: the raw
// records of each of the five telemetry collections, unmodified.
type Report struct {
	SessionID   string            `json:"sessionId"`
	Produto     string            `json:"produto"`
	Events      []record.Document `json:"events"`
	Engagements []record.Document `json:"engagements"`
	Profiles    []record.Document `json:"profiles"`
	Errors      []record.Document `json:"errors"`
	Replays     []record.Document `json:"replays"`
}

var collections = []string{
	ingest.TypeEvent,
	ingest.TypeEngagement,
	ingest.TypeProfile,
	ingest.TypeError,
	ingest.TypeSessionReplay,
}

// Service reads the durable store independently of the ingestion path.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// BuildReport gathers the five collections concurrently. A pair with no
// stored records yields five empty sequences, not an error; any sub-read
// failing fails the whole call.
func (s *Service) BuildReport(ctx context.Context, sessionID, produto string) (*Report, error) {
	filter := store.Filter{
		ingest.FieldSession: sessionID,
		ingest.FieldProduct: produto,
	}

	results := make([][]record.Document, len(collections))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, coll := range collections {
		wg.Add(1)
		go func(i int, coll string) {
			defer wg.Done()
			docs, err := s.store.Find(ctx, coll, filter,
				store.Sort{Field: ingest.FieldCreatedAt, Ascending: true})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &AggregationError{Collection: coll, Err: err}
				}
				mu.Unlock()
				return
			}
			if docs == nil {
				docs = []record.Document{}
			}
			results[i] = docs
		}(i, coll)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	return &Report{
		SessionID:   sessionID,
		Produto:     produto,
		Events:      results[0],
		Engagements: results[1],
		Profiles:    results[2],
		Errors:      results[3],
		Replays:     results[4],
	}, nil
}
