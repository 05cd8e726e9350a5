// Package reference fetches an external monthly savings-rate series from a
// FRED-compatible observations endpoint.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"savingsrate/internal/cache"
	"savingsrate/internal/core"
	"savingsrate/internal/log"
)

// missingValue is how FRED marks an observation without data.
const missingValue = "."

var ErrBadResponse = errors.New("reference: bad response")

// Request names the endpoint and the month window to fetch. Start and End
// are sent as the first day of their month.
type Request struct {
	URL    string
	APIKey string
	Start  core.MonthKey
	End    core.MonthKey
}

func (r Request) cacheKey() string {
	return strings.Join([]string{r.URL, r.Start.String(), r.End.String()}, "|")
}

// Fetcher is what the comparison service needs from this package.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]core.ReferencePoint, error)
}

type Client struct {
	http   *http.Client
	cache  cache.Cache[[]core.ReferencePoint]
	logger *log.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache stores successful responses keyed by URL and month window.
func WithCache(cc cache.Cache[[]core.ReferencePoint]) Option {
	return func(c *Client) { c.cache = cc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentReference) }
}

// NewClient returns a client whose requests give up after timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:   newPooledHTTPClient(timeout),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newPooledHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Fetch returns the observations between Start and End. Missing values are
// dropped; any transport, status or decoding problem is an error.
func (c *Client) Fetch(ctx context.Context, req Request) ([]core.ReferencePoint, error) {
	if c.cache != nil {
		if pts, ok := c.cache.Get(req.cacheKey()); ok {
			c.logger.DebugContext(ctx, "Reference cache hit", log.FieldSource, req.URL)
			return pts, nil
		}
	}

	u, err := requestURL(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build reference request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch reference: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read reference body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, snippet(body))
	}

	pts, err := ParseObservations(body)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Reference series fetched",
		log.FieldPoints, len(pts),
		log.FieldDuration, time.Since(start).Milliseconds())

	if c.cache != nil {
		c.cache.Set(req.cacheKey(), pts)
	}
	return pts, nil
}

func requestURL(req Request) (string, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return "", fmt.Errorf("parse reference url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("reference url %q: scheme must be http or https", req.URL)
	}
	q := u.Query()
	if req.APIKey != "" {
		q.Set("api_key", req.APIKey)
	}
	if !req.Start.IsZero() {
		q.Set("observation_start", firstDay(req.Start))
	}
	if !req.End.IsZero() {
		q.Set("observation_end", firstDay(req.End))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func firstDay(k core.MonthKey) string {
	return k.Time().Format("2006-01-02")
}

type observations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// ParseObservations decodes a FRED observations document.
func ParseObservations(body []byte) ([]core.ReferencePoint, error) {
	var doc observations
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	pts := make([]core.ReferencePoint, 0, len(doc.Observations))
	for _, o := range doc.Observations {
		v := strings.TrimSpace(o.Value)
		if v == "" || v == missingValue {
			continue
		}
		month, err := core.ParseMonthKey(strings.TrimSpace(o.Date))
		if err != nil {
			return nil, fmt.Errorf("%w: observation date %q", ErrBadResponse, o.Date)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: observation value %q", ErrBadResponse, o.Value)
		}
		pts = append(pts, core.ReferencePoint{Month: month, Value: f})
	}
	return pts, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
