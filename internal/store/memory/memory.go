// Package memory is an in-process Store with the same upsert-and-increment
// semantics as the document store. Used by tests and dry runs.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"lunarcollector/internal/record"
	"lunarcollector/internal/store"
)

type key struct {
	symbol string
	day    int64 // fetchedAt in unix nanoseconds
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	loc *time.Location

	mu     sync.RWMutex
	data   map[key]*record.Record
	ready  bool
	writes int // batches that reached the store
}

// New creates an empty store whose day lookups use loc (nil means UTC).
func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{loc: loc, data: make(map[key]*record.Record)}
}

func (s *Store) EnsureReady(_ context.Context) error {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

// UpsertBatch mirrors a $set plus $inc upsert: absent metrics keep their
// stored value and updateCount grows by one per write.
func (s *Store) UpsertBatch(_ context.Context, recs []record.Record) (store.UpsertResult, error) {
	res := store.UpsertResult{Attempted: len(recs)}
	if len(recs) == 0 {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	for _, r := range recs {
		k := key{symbol: r.Symbol, day: r.FetchedAt.UnixNano()}
		cur, exists := s.data[k]
		if !exists {
			cur = &record.Record{Symbol: r.Symbol, FetchedAt: r.FetchedAt, Metrics: map[string]any{}}
			s.data[k] = cur
			res.Upserted++
		} else {
			res.Modified++
		}
		cur.UpdateTimestamp = r.UpdateTimestamp
		maps.Copy(cur.Metrics, r.Metrics)
		cur.UpdateCount++
	}
	return res, nil
}

func (s *Store) LatestFor(_ context.Context, symbol string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *record.Record
	for k, r := range s.data {
		if k.symbol != symbol {
			continue
		}
		if best == nil || r.FetchedAt.After(best.FetchedAt) {
			best = r
		}
	}
	if best == nil {
		return record.Record{}, store.ErrNotFound
	}
	return clone(best), nil
}

func (s *Store) ForDay(_ context.Context, symbol string, day time.Time) (record.Record, error) {
	start, end := store.DayRange(day, s.loc)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, r := range s.data {
		if k.symbol == symbol && !r.FetchedAt.Before(start) && r.FetchedAt.Before(end) {
			return clone(r), nil
		}
	}
	return record.Record{}, store.ErrNotFound
}

func (s *Store) Close(_ context.Context) error { return nil }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Batches returns how many non-empty batches were written.
func (s *Store) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Ready reports whether EnsureReady was called.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func clone(r *record.Record) record.Record {
	out := *r
	out.Metrics = maps.Clone(r.Metrics)
	return out
}

var _ store.Store = (*Store)(nil)
