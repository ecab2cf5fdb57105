package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Provider returns a cached credential while it is valid and acquires a new
// one otherwise. Concurrent misses share a single acquisition.
type Provider struct {
	cache    Cache
	acquirer Acquirer
	log      logrus.FieldLogger
	now      func() time.Time
	observe  func(took time.Duration, err error)
	timeout  time.Duration

	sf singleflight.Group
}

// DefaultAcquireTimeout bounds one shared acquisition. It covers a browser
// launch plus the navigation and response-wait timeouts.
const DefaultAcquireTimeout = 2 * time.Minute

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger used for acquisition events.
func WithLogger(l logrus.FieldLogger) ProviderOption {
	return func(p *Provider) { p.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// WithObserver registers fn to be called after every acquisition attempt.
func WithObserver(fn func(took time.Duration, err error)) ProviderOption {
	return func(p *Provider) { p.observe = fn }
}

// WithAcquireTimeout bounds a shared acquisition independently of its callers.
func WithAcquireTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 { p.timeout = d }
	}
}

func NewProvider(cache Cache, acquirer Acquirer, opts ...ProviderOption) *Provider {
	if cache == nil {
		cache = &MemoryCache{}
	}
	p := &Provider{cache: cache, acquirer: acquirer, log: logrus.StandardLogger(), now: time.Now, timeout: DefaultAcquireTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a valid bearer token. Acquisition failures are returned unchanged.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if c, ok, err := p.cached(ctx); err != nil || ok {
		return c.Value, err
	}

	// The acquisition is shared by every caller that joins it, so it does not
	// inherit any single caller's cancellation. Each caller still stops
	// waiting when its own ctx ends.
	ch := p.sf.DoChan("token", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.acquire(ctx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.log.Debug("joined in-flight credential acquisition")
		}
		return res.Val.(Credential).Value, nil
	}
}

func (p *Provider) acquire(ctx context.Context) (Credential, error) {
	// A caller that raced us here may have refreshed the cache already.
	if c, ok, err := p.cached(ctx); err != nil || ok {
		return c, err
	}
	start := p.now()
	c, err := p.acquirer.Acquire(ctx)
	if p.observe != nil {
		p.observe(p.now().Sub(start), err)
	}
	if err != nil {
		return Credential{}, err
	}
	if err := p.cache.Set(ctx, c); err != nil {
		return Credential{}, fmt.Errorf("store credential: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"expires_at": c.ExpiresAt.Format(time.RFC3339),
		"took":       p.now().Sub(start).String(),
	}).Info("acquired bearer credential")
	return c, nil
}

func (p *Provider) cached(ctx context.Context) (Credential, bool, error) {
	c, ok, err := p.cache.Get(ctx)
	if err != nil {
		return Credential{}, false, fmt.Errorf("read credential cache: %w", err)
	}
	if !ok || !c.Valid(p.now()) {
		return Credential{}, false, nil
	}
	return c, true, nil
}
