// Package browser drives a headless Chrome through chromedp so the
// credential package can watch the requests a real page makes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"lunarcollector/internal/credential"
)

const chromeVersion = "131.0.0.0"

// hideAutomation runs before any page script.
const hideAutomation = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// DefaultUserAgent returns a desktop Chrome User-Agent for the current OS.
func DefaultUserAgent() string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", chromeVersion)
	case "darwin":
		return fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", chromeVersion)
	default:
		arch := "x86_64"
		if runtime.GOARCH == "arm64" {
			arch = "aarch64"
		}
		return fmt.Sprintf("Mozilla/5.0 (X11; Linux %s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", arch, chromeVersion)
	}
}

type Config struct {
	// ExecPath points at a Chrome binary; empty lets chromedp search PATH.
	ExecPath string
	Headless bool
}

// Launcher starts one Chrome process per session.
type Launcher struct {
	cfg Config
}

func NewLauncher(cfg Config) *Launcher {
	return &Launcher{cfg: cfg}
}

func (l *Launcher) allocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

func (l *Launcher) Launch(ctx context.Context, userAgent string) (credential.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions(userAgent)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &session{
		ctx:      tabCtx,
		cancel:   func() { tabCancel(); allocCancel() },
		requests: make(map[network.RequestID]*credential.Request),
		notify:   make(chan struct{}, 1),
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run allocates Chrome and binds the process and the target
	// loop to the context it runs on, so it must be tabCtx itself. The
	// caller's ctx only bounds startup.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideAutomation).Do(ctx)
			return err
		}),
	)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.cancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	order     []network.RequestID
	requests  map[network.RequestID]*credential.Request
	responses []network.RequestID
	notify    chan struct{}
	closeOnce sync.Once
}

// run executes actions on an already started tab, bounded by the caller's ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *session) onEvent(ev any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		r := s.entry(e.RequestID)
		r.URL = e.Request.URL
		mergeHeaders(r.Headers, e.Request.Headers)
	case *network.EventRequestWillBeSentExtraInfo:
		mergeHeaders(s.entry(e.RequestID).Headers, e.Headers)
	case *network.EventResponseReceived:
		if e.Response != nil {
			if r := s.entry(e.RequestID); r.URL == "" {
				r.URL = e.Response.URL
			}
		}
		s.responses = append(s.responses, e.RequestID)
	default:
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// entry must be called with mu held.
func (s *session) entry(id network.RequestID) *credential.Request {
	r, ok := s.requests[id]
	if !ok {
		r = &credential.Request{Headers: map[string]string{}}
		s.requests[id] = r
		s.order = append(s.order, id)
	}
	return r
}

func (s *session) Navigate(ctx context.Context, url string) ([]credential.Request, error) {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	return s.snapshot(), nil
}

// snapshot returns every request seen so far in arrival order.
func (s *session) snapshot() []credential.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]credential.Request, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRequest(s.requests[id]))
	}
	return out
}

func (s *session) WaitForResponse(ctx context.Context, substr string) (credential.Request, error) {
	seen := 0
	for {
		s.mu.Lock()
		for ; seen < len(s.responses); seen++ {
			r := s.requests[s.responses[seen]]
			if r != nil && strings.Contains(r.URL, substr) {
				out := copyRequest(r)
				s.mu.Unlock()
				return out, nil
			}
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return credential.Request{}, ctx.Err()
		case <-s.ctx.Done():
			return credential.Request{}, errors.New("browser session ended")
		case <-s.notify:
		}
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func copyRequest(r *credential.Request) credential.Request {
	out := credential.Request{URL: r.URL, Headers: make(map[string]string, len(r.Headers))}
	for k, v := range r.Headers {
		out.Headers[k] = v
	}
	return out
}

func mergeHeaders(dst map[string]string, src network.Headers) {
	for k, v := range src {
		switch t := v.(type) {
		case string:
			dst[k] = t
		default:
			dst[k] = fmt.Sprint(t)
		}
	}
}

var _ credential.Launcher = (*Launcher)(nil)
