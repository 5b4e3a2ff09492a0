package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/pulsoweb/pulso-gateway/internal/record"
)

// Memory is a map-backed Store used by tests and by fake mode. Documents are
// copied on insert and on read so callers never share a mutable buffer.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	colls  map[string][]record.Document
}

func NewMemory() *Memory {
	return &Memory{colls: make(map[string][]record.Document)}
}

func (m *Memory) InsertOne(_ context.Context, collection string, doc record.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("mem-%d", m.nextID)
	stored := doc.Clone()
	stored["_id"] = id
	m.colls[collection] = append(m.colls[collection], stored)
	return id, nil
}

func (m *Memory) Find(_ context.Context, collection string, filter Filter, s Sort) ([]record.Document, error) {
	m.mu.RLock()
	var out []record.Document
	for _, doc := range m.colls[collection] {
		if matches(doc, filter) {
			out = append(out, doc.Clone())
		}
	}
	m.mu.RUnlock()

	if s.Field != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][s.Field], out[j][s.Field])
			if s.Ascending {
				return less
			}
			return lessValue(out[j][s.Field], out[i][s.Field])
		})
	}
	return out, nil
}

func (m *Memory) FindOne(_ context.Context, collection string, filter Filter) (record.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.colls[collection] {
		if matches(doc, filter) {
			return doc.Clone(), nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateOne(_ context.Context, collection string, filter Filter, update record.Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, doc := range m.colls[collection] {
		if matches(doc, filter) {
			next := doc.Clone()
			for k, v := range update {
				next[k] = v
			}
			m.colls[collection][i] = next
			return 1, nil
		}
	}
	return 0, nil
}

func matches(doc record.Document, filter Filter) bool {
	for k, want := range filter {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	}
	return false
}
