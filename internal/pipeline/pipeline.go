// Package pipeline runs one collection pass: ensure the store, fetch the
// snapshot, normalize it and upsert the records.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lunarcollector/internal/credential"
	"lunarcollector/internal/observability"
	"lunarcollector/internal/provider"
	"lunarcollector/internal/provider/lunarcrush"
	"lunarcollector/internal/record"
	"lunarcollector/internal/store"
)

//go:generate mockgen -package=pipeline_test -destination=mock_fetcher_test.go lunarcollector/internal/provider Fetcher
//go:generate mockgen -package=pipeline_test -destination=mock_store_test.go lunarcollector/internal/store Store

// Result describes a finished run.
type Result struct {
	RunID      string             `json:"run_id"`
	Category   string             `json:"category"`
	Fetched    int                `json:"fetched"`
	Normalized int                `json:"normalized"`
	Dropped    int                `json:"dropped"`
	Upsert     store.UpsertResult `json:"upsert"`
	Took       time.Duration      `json:"took"`
}

// Pipeline wires a fetcher to a store for one shape.
type Pipeline struct {
	fetcher provider.Fetcher
	store   store.Store
	shape   record.Shape
	log     logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(f provider.Fetcher, s store.Store, shape record.Shape, opts ...Option) *Pipeline {
	p := &Pipeline{fetcher: f, store: s, shape: shape, log: logrus.StandardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one pass. Stage failures are returned unchanged; nothing is
// retried. Result is filled up to the failing stage.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	start := p.now()
	res.RunID = uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"run_id": res.RunID, "source": p.fetcher.Name(), "shape": p.shape.String()})

	defer func() {
		res.Took = p.now().Sub(start)
		status := observability.StatusOK
		if err != nil {
			status = observability.StatusError
			log.WithError(err).Error("collection run failed")
		} else {
			log.WithField("took", res.Took.String()).Info("collection run finished")
		}
		if p.metrics != nil {
			p.metrics.RecordRun(status, res.Took, p.now())
		}
	}()

	if err := p.store.EnsureReady(ctx); err != nil {
		return res, err
	}

	fetchStart := p.now()
	env, err := p.fetcher.FetchAll(ctx)
	if p.metrics != nil {
		p.metrics.FetchDuration.Observe(p.now().Sub(fetchStart).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.UpstreamErrors.WithLabelValues(errorKind(err)).Inc()
		}
		return res, err
	}
	res.Category = env.Category
	res.Fetched = len(env.Data)
	log = log.WithField("category", env.Category)

	recs := record.Normalize(env, p.shape)
	res.Normalized = len(recs)
	res.Dropped = res.Fetched - res.Normalized
	log.WithFields(logrus.Fields{"fetched": res.Fetched, "normalized": res.Normalized, "dropped": res.Dropped}).Info("normalized snapshot")
	if p.metrics != nil {
		p.metrics.TokensFetched.Add(float64(res.Fetched))
		p.metrics.TokensDropped.Add(float64(res.Dropped))
	}

	res.Upsert, err = p.store.UpsertBatch(ctx, recs)
	if p.metrics != nil {
		p.metrics.RecordsUpserted.Add(float64(res.Upsert.Upserted))
		p.metrics.RecordsModified.Add(float64(res.Upsert.Modified))
	}
	if err != nil {
		return res, err
	}
	log.WithFields(logrus.Fields{
		"attempted": res.Upsert.Attempted,
		"upserted":  res.Upsert.Upserted,
		"modified":  res.Upsert.Modified,
	}).Info("saved records")
	return res, nil
}

// errorKind labels a fetch failure for metrics.
func errorKind(err error) string {
	var (
		acqErr *credential.AcquisitionError
		upErr  *lunarcrush.UpstreamError
		netErr *lunarcrush.NetworkError
	)
	switch {
	case errors.As(err, &acqErr):
		return "credential"
	case errors.As(err, &upErr):
		if upErr.RateLimited() {
			return "rate_limited"
		}
		return "upstream"
	case errors.As(err, &netErr):
		return "network"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "decode"
	}
}
