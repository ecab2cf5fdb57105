package lunarcrush

import (
	"context"
	"net/http"
	"time"
)

// DefaultEndpoint is the category snapshot the collector reads.
const DefaultEndpoint = "https://lunarcrush.com/api3/storm/category/cryptocurrencies"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=lunarcrush_test -destination=mock_http_client_test.go -source=client.go HTTPClient,TokenSource
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the bearer credential for a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is a client for the LunarCrush storm API.
type Client struct {
	// endpoint is the full URL of the category snapshot.
	endpoint string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// tokens supplies the bearer credential.
	tokens TokenSource
	// header contains the fingerprint headers sent with each request.
	header http.Header
	// now is the fetch clock.
	now func() time.Time
	// loc is the zone whose midnight stamps fetchedAt.
	loc *time.Location
}

// ClientOption is a configuration option for the LunarCrush client.
type ClientOption func(*Client)

// WithEndpoint sets the snapshot URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithDayZone sets the zone used to truncate fetchedAt to a day.
func WithDayZone(loc *time.Location) ClientOption {
	return func(c *Client) {
		c.loc = loc
	}
}

// fingerprintHeaders are the headers the provider's own web client sends.
func fingerprintHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("sec-ch-ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("x-lunar-client", "yolo")
	h.Set("Referer", "https://lunarcrush.com/categories/cryptocurrencies")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	return h
}

// NewClient creates a new LunarCrush client that authenticates with tokens.
func NewClient(tokens TokenSource, options ...ClientOption) *Client {
	var c = &Client{
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
		tokens:     tokens,
		header:     fingerprintHeaders(),
		now:        time.Now,
		loc:        time.UTC,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return "lunarcrush" }
