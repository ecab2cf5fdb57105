package lunarcrush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lunarcollector/internal/provider"
	"lunarcollector/internal/record"
)

type snapshot struct {
	Category string           `json:"category"`
	Data     []map[string]any `json:"data"`
}

// FetchAll retrieves the whole category snapshot in one request and stamps
// every token with the fetch day and instant.
func (c *Client) FetchAll(ctx context.Context) (*provider.Envelope, error) {
	// A token failure is returned as is and no request is made.
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &UpstreamError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var body snapshot
	br := &bodyReader{r: res.Body}
	dec := json.NewDecoder(br)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		if br.err != nil {
			// The connection failed mid-body; the payload itself was never seen whole.
			return nil, &NetworkError{Err: br.err}
		}
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	now := c.now()
	day := record.StartOfDay(now, c.loc)
	env := &provider.Envelope{Category: body.Category, Data: make([]provider.RawToken, 0, len(body.Data))}
	for _, fields := range body.Data {
		if fields == nil {
			// A literal null element still takes a slot; the normalizer drops it.
			fields = map[string]any{}
		}
		env.Data = append(env.Data, provider.RawToken{
			Fields:          numbersToNative(fields),
			FetchedAt:       day,
			UpdateTimestamp: now,
		})
	}
	return env, nil
}

// bodyReader remembers the first transport error seen while reading.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// numbersToNative converts json.Number values to int64 when integral,
// float64 otherwise, so they persist as numbers.
func numbersToNative(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = nativeValue(v)
	}
	return m
}

func nativeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = nativeValue(t[i])
		}
		return t
	case map[string]any:
		return numbersToNative(t)
	default:
		return v
	}
}

var _ provider.Fetcher = (*Client)(nil)
