package credential

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Credential is a bearer token and the instant it stops being usable.
type Credential struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether c holds a token that has not expired at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Value != "" && !c.ExpiresAt.IsZero() && c.ExpiresAt.After(now)
}

// Acquirer obtains a fresh credential.
//
//go:generate mockgen -package=credential_test -destination=mock_credential_test.go -source=credential.go
type Acquirer interface {
	Acquire(ctx context.Context) (Credential, error)
}

// Cache holds at most one credential.
type Cache interface {
	// Get returns the stored credential. ok is false when nothing usable is held.
	Get(ctx context.Context) (c Credential, ok bool, err error)
	// Set replaces the stored credential wholesale.
	Set(ctx context.Context, c Credential) error
}

// ErrNoToken is reported when the browser session finished without exposing a bearer token.
var ErrNoToken = errors.New("no bearer token observed")

// AcquisitionError reports a failed credential acquisition and the stage it failed in.
type AcquisitionError struct {
	Stage string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire credential (%s): %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Acquisition stages.
const (
	StageLaunch   = "launch"
	StageNavigate = "navigate"
	StageWait     = "wait"
	StageExtract  = "extract"
)
