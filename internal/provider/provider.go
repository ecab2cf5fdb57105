package provider

import (
	"context"
	"time"
)

// RawToken is one element of the upstream data list as fetched.
// Fields is kept open-ended; its keys depend on the upstream shape.
type RawToken struct {
	Fields          map[string]any
	FetchedAt       time.Time
	UpdateTimestamp time.Time
}

// Envelope is the as-fetched payload with every element stamped.
type Envelope struct {
	Category string
	Data     []RawToken
}

// Fetcher retrieves one snapshot of the upstream category listing.
type Fetcher interface {
	Name() string
	FetchAll(ctx context.Context) (*Envelope, error)
}
