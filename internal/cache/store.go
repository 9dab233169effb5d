package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

const timestampKey = "timestamp"

// Document is one cache file: entries keyed by normalized request plus the
// single timestamp of the last write.
type Document[V any] struct {
	Entries   map[string]V
	Timestamp time.Time
}

// NewDocument returns an empty document with a zero timestamp.
func NewDocument[V any]() Document[V] {
	return Document[V]{Entries: make(map[string]V)}
}

// Age returns how long ago the document was written. A document that was
// never written is infinitely old.
func (d Document[V]) Age(now time.Time) time.Duration {
	if d.Timestamp.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(d.Timestamp)
}

// Store loads and saves whole documents.
type Store[V any] interface {
	Load(ctx context.Context) (Document[V], error)
	Save(ctx context.Context, doc Document[V]) error
}

// JSONStore encodes documents as {"<entriesKey>": {...}, "timestamp": <epoch seconds>}.
type JSONStore[V any] struct {
	name       string
	entriesKey string
	backend    Backend
}

// NewJSONStore returns a store named name (used as the metrics label) that
// keeps its entries under entriesKey.
func NewJSONStore[V any](name, entriesKey string, backend Backend) *JSONStore[V] {
	return &JSONStore[V]{name: name, entriesKey: entriesKey, backend: backend}
}

// Load returns the stored document. On ErrNotFound or ErrCorrupt it also
// returns an empty document, so callers may use the result either way.
func (s *JSONStore[V]) Load(ctx context.Context) (Document[V], error) {
	raw, err := s.backend.Read(ctx)
	if err != nil {
		reason := "read_error"
		if errors.Is(err, ErrNotFound) {
			reason = "not_found"
		}
		observability.CacheLoadFailuresTotal.WithLabelValues(s.name, reason).Inc()
		return NewDocument[V](), err
	}

	doc, err := s.decode(raw)
	if err != nil {
		observability.CacheLoadFailuresTotal.WithLabelValues(s.name, "corrupt").Inc()
		return NewDocument[V](), err
	}
	return doc, nil
}

func (s *JSONStore[V]) decode(raw []byte) (Document[V], error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document[V]{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	doc := NewDocument[V]()
	if entries, ok := fields[s.entriesKey]; ok && string(entries) != "null" {
		if err := json.Unmarshal(entries, &doc.Entries); err != nil {
			return Document[V]{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.entriesKey, err)
		}
		if doc.Entries == nil {
			doc.Entries = make(map[string]V)
		}
	}
	if ts, ok := fields[timestampKey]; ok {
		var secs float64
		if err := json.Unmarshal(ts, &secs); err != nil {
			return Document[V]{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, timestampKey, err)
		}
		doc.Timestamp = fromEpochSeconds(secs)
	}
	return doc, nil
}

// Save replaces the stored document.
func (s *JSONStore[V]) Save(ctx context.Context, doc Document[V]) error {
	entries := doc.Entries
	if entries == nil {
		entries = make(map[string]V)
	}
	raw, err := json.MarshalIndent(map[string]any{
		s.entriesKey: entries,
		timestampKey: toEpochSeconds(doc.Timestamp),
	}, "", "  ")
	if err != nil {
		observability.CacheWritesTotal.WithLabelValues(s.name, "error").Inc()
		return fmt.Errorf("encode %s cache: %w", s.name, err)
	}
	if err := s.backend.Write(ctx, raw); err != nil {
		observability.CacheWritesTotal.WithLabelValues(s.name, "error").Inc()
		return fmt.Errorf("save %s cache: %w", s.name, err)
	}
	observability.CacheWritesTotal.WithLabelValues(s.name, "success").Inc()
	return nil
}

// Name returns the store's metrics label.
func (s *JSONStore[V]) Name() string {
	return s.name
}

func toEpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromEpochSeconds(secs float64) time.Time {
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}
