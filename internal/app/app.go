// Package app builds the collector's object graph from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"lunarcollector/internal/config"
	"lunarcollector/internal/credential"
	"lunarcollector/internal/credential/browser"
	"lunarcollector/internal/httpx"
	"lunarcollector/internal/observability"
	"lunarcollector/internal/pipeline"
	"lunarcollector/internal/provider/lunarcrush"
	"lunarcollector/internal/record"
	"lunarcollector/internal/store"
	"lunarcollector/internal/store/memory"
	"lunarcollector/internal/store/mongostore"
)

// App owns every long-lived component of one collector process.
type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Metrics  *observability.Metrics
	Tokens   *credential.Provider
	Client   *lunarcrush.Client
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Shape    record.Shape

	// Memory is the store in use during a dry run, nil otherwise.
	Memory *memory.Store

	redis *redis.Client
}

// NewLogger configures a logrus logger from the logging section.
func NewLogger(cfg config.Logging) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	log.SetLevel(level)
	if cfg.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// New validates cfg and wires the components. Nothing dials out until used.
func New(cfg config.Config, log *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	shape, err := record.ParseShape(cfg.LunarCrush.Shape)
	if err != nil {
		return nil, err
	}
	zone, err := record.ParseZone(cfg.LunarCrush.DayZone)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	a := &App{Config: cfg, Log: log, Metrics: metrics, Shape: shape}

	var cache credential.Cache = &credential.MemoryCache{}
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = credential.NewRedisCache(a.redis, cfg.Redis.Key)
	}

	a.Tokens = credential.NewProvider(cache, acquirer(cfg, log),
		credential.WithLogger(log.WithField("component", "credential")),
		credential.WithObserver(metrics.ObserveAcquisition),
	)

	a.Client = lunarcrush.NewClient(a.Tokens,
		lunarcrush.WithEndpoint(cfg.LunarCrush.Endpoint),
		lunarcrush.WithHTTPClient(httpx.New(cfg.LunarCrush.RequestTimeout())),
		lunarcrush.WithDayZone(zone),
	)

	if cfg.DryRun {
		a.Memory = memory.New(zone)
		a.Store = a.Memory
	} else {
		a.Store, err = mongostore.New(mongostore.Config{
			URI:        cfg.Mongo.URL,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			DayZone:    zone,
		}, mongostore.WithLogger(log.WithField("component", "store")))
		if err != nil {
			return nil, err
		}
	}

	a.Pipeline = pipeline.New(a.Client, a.Store, shape,
		pipeline.WithLogger(log.WithField("component", "pipeline")),
		pipeline.WithMetrics(metrics),
	)
	return a, nil
}

// acquirer picks the static key when one is configured, the browser otherwise.
func acquirer(cfg config.Config, log *logrus.Logger) credential.Acquirer {
	if cfg.LunarCrush.APIKey != "" {
		return credential.StaticAcquirer{Token: cfg.LunarCrush.APIKey, Expiry: cfg.LunarCrush.TokenExpiry()}
	}
	ua := cfg.Browser.UserAgent
	if ua == "" {
		ua = browser.DefaultUserAgent()
	}
	return credential.NewBrowserAcquirer(credential.BrowserConfig{
		PageURL:           cfg.Browser.PageURL,
		ResponseMatch:     cfg.Browser.ResponseMatch,
		UserAgent:         ua,
		NavigationTimeout: cfg.Browser.NavigationTimeout(),
		ResponseWait:      cfg.Browser.ResponseWait(),
		TokenExpiry:       cfg.LunarCrush.TokenExpiry(),
	}, browser.NewLauncher(browser.Config{
		ExecPath: cfg.Browser.ExecPath,
		Headless: cfg.Browser.Headless,
	}), log.WithField("component", "browser"))
}

// Close releases the store connection and the Redis client.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
