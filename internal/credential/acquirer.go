package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Request is an outbound browser request as observed on the wire.
type Request struct {
	URL     string
	Headers map[string]string
}

// Launcher starts isolated, scriptable browser sessions.
//
//go:generate mockgen -package=credential_test -destination=mock_browser_test.go -source=acquirer.go Launcher,Session
type Launcher interface {
	Launch(ctx context.Context, userAgent string) (Session, error)
}

// Session is one running browser. Close must be called on every path.
type Session interface {
	// Navigate loads url and returns the outbound requests seen until the load settles.
	Navigate(ctx context.Context, url string) ([]Request, error)
	// WaitForResponse blocks until a response whose URL contains substr arrives
	// and returns the request that produced it.
	WaitForResponse(ctx context.Context, substr string) (Request, error)
	Close() error
}

// Defaults for BrowserConfig.
const (
	DefaultPageURL           = "https://lunarcrush.com/categories/cryptocurrencies"
	DefaultResponseMatch     = "api3/storm"
	DefaultNavigationTimeout = 60 * time.Second
	DefaultResponseWait      = 10 * time.Second
	DefaultTokenExpiry       = 12 * time.Hour
)

type BrowserConfig struct {
	PageURL           string
	ResponseMatch     string
	UserAgent         string
	NavigationTimeout time.Duration
	ResponseWait      time.Duration
	TokenExpiry       time.Duration
}

// BrowserAcquirer intercepts the bearer token the provider's own web page
// sends to its API. There is no static fallback.
type BrowserAcquirer struct {
	cfg      BrowserConfig
	launcher Launcher
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewBrowserAcquirer(cfg BrowserConfig, l Launcher, log logrus.FieldLogger) *BrowserAcquirer {
	if cfg.PageURL == "" {
		cfg.PageURL = DefaultPageURL
	}
	if cfg.ResponseMatch == "" {
		cfg.ResponseMatch = DefaultResponseMatch
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.ResponseWait <= 0 {
		cfg.ResponseWait = DefaultResponseWait
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = DefaultTokenExpiry
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BrowserAcquirer{cfg: cfg, launcher: l, log: log, now: time.Now}
}

func (a *BrowserAcquirer) Acquire(ctx context.Context) (cred Credential, err error) {
	sess, err := a.launcher.Launch(ctx, a.cfg.UserAgent)
	if err != nil {
		return Credential{}, &AcquisitionError{Stage: StageLaunch, Err: err}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("closing browser session")
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	reqs, err := sess.Navigate(navCtx, a.cfg.PageURL)
	cancel()
	if err != nil {
		return Credential{}, &AcquisitionError{Stage: StageNavigate, Err: err}
	}
	a.log.WithField("requests", len(reqs)).Debug("page navigation finished")

	if tok := a.tokenFrom(reqs); tok != "" {
		return a.credential(tok), nil
	}

	a.log.WithField("match", a.cfg.ResponseMatch).Debug("no token during navigation, waiting for api response")
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ResponseWait)
	defer cancel()
	req, err := sess.WaitForResponse(waitCtx, a.cfg.ResponseMatch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(ErrNoToken, err)
		}
		return Credential{}, &AcquisitionError{Stage: StageWait, Err: err}
	}
	if tok := BearerToken(req.Headers); tok != "" {
		return a.credential(tok), nil
	}
	return Credential{}, &AcquisitionError{Stage: StageExtract, Err: ErrNoToken}
}

// tokenFrom prefers requests aimed at the API before any other request.
func (a *BrowserAcquirer) tokenFrom(reqs []Request) string {
	for _, r := range reqs {
		if strings.Contains(r.URL, a.cfg.ResponseMatch) {
			if tok := BearerToken(r.Headers); tok != "" {
				return tok
			}
		}
	}
	for _, r := range reqs {
		if tok := BearerToken(r.Headers); tok != "" {
			return tok
		}
	}
	return ""
}

func (a *BrowserAcquirer) credential(tok string) Credential {
	return Credential{Value: tok, ExpiresAt: a.now().Add(a.cfg.TokenExpiry)}
}

// BearerToken extracts <token> from an "authorization: Bearer <token>" header.
// Header names are matched case-insensitively.
func BearerToken(headers map[string]string) string {
	for k, v := range headers {
		if !strings.EqualFold(k, "authorization") {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) > len("bearer ") && strings.EqualFold(v[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(v[len("bearer "):])
		}
	}
	return ""
}

// StaticAcquirer hands out a configured API key as a credential.
type StaticAcquirer struct {
	Token  string
	Expiry time.Duration
}

func (s StaticAcquirer) Acquire(context.Context) (Credential, error) {
	if s.Token == "" {
		return Credential{}, &AcquisitionError{Stage: StageExtract, Err: ErrNoToken}
	}
	exp := s.Expiry
	if exp <= 0 {
		exp = DefaultTokenExpiry
	}
	return Credential{Value: s.Token, ExpiresAt: time.Now().Add(exp)}, nil
}

var (
	_ Acquirer = (*BrowserAcquirer)(nil)
	_ Acquirer = StaticAcquirer{}
)
