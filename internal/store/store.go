package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lunarcollector/internal/record"
)

// ErrNotFound is returned by the query helpers when no record matches.
var ErrNotFound = errors.New("not found")

// UpsertResult summarizes one UpsertBatch call. Attempted is the number of
// records submitted; Upserted and Modified are what the store reported.
type UpsertResult struct {
	Attempted int `json:"attempted"`
	Upserted  int `json:"upserted"`
	Modified  int `json:"modified"`
}

// Store persists canonical records, one per (symbol, fetch day).
type Store interface {
	// EnsureReady creates the collection and its unique (symbol, fetchedAt)
	// index when missing. Safe to call on every run.
	EnsureReady(ctx context.Context) error

	// UpsertBatch sets every field of each record and increments its
	// updateCount by one, inserting when absent. All writes go out as one
	// batch. An empty batch makes no round trip.
	UpsertBatch(ctx context.Context, recs []record.Record) (UpsertResult, error)

	// LatestFor returns the record for symbol with the greatest fetchedAt.
	// Returns ErrNotFound if none exists.
	LatestFor(ctx context.Context, symbol string) (record.Record, error)

	// ForDay returns the record for symbol whose fetchedAt falls on day's
	// calendar day in the store's zone. Returns ErrNotFound if none exists.
	ForDay(ctx context.Context, symbol string, day time.Time) (record.Record, error)

	// Close releases the connection. A later call reconnects.
	Close(ctx context.Context) error
}

// Error is a connection or write failure. For batch writes it carries what
// the store applied before failing; the batch is not transactional.
type Error struct {
	Op       string
	Err      error
	Upserted int
	Modified int
	Failed   int
}

func (e *Error) Error() string {
	if e.Failed > 0 {
		return fmt.Sprintf("store %s: %d writes failed (upserted=%d modified=%d): %v", e.Op, e.Failed, e.Upserted, e.Modified, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DayRange returns [start, end) of day's calendar day in loc.
func DayRange(day time.Time, loc *time.Location) (time.Time, time.Time) {
	start := record.StartOfDay(day, loc)
	return start, start.AddDate(0, 0, 1)
}
