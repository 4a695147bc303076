// Package fetch is the HTTP boundary of the navigation engine: a cookie
// aware client, the Request lifecycle driven by a delegate, and Response
// with lazily materialized HTML.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Synthetic status codes for requests that produced no usable response.
const (
	NetworkFailure      = 0
	TimeoutFailure      = -1
	ContentTypeMismatch = -2
)

const maxRedirects = 10

// Client performs requests for the engine. It keeps cookies across
// requests so same-origin credentials behave like a browser.
type Client struct {
	http    *http.Client
	ua      string
	maxBody int64
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Its cookie jar, if any, is used
// for CSRF cookie lookups.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.ua = ua }
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// WithMaxBodySize caps the number of body bytes read per response.
func WithMaxBodySize(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBody = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a Client with a cookie jar and a redirect cap.
func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		ua:      "pagedrive/1.0",
		maxBody: 10 << 20,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do sends req and reads the whole body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	res := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Location:   final,
		Redirected: final.String() != req.URL.String(),
		body:       body,
	}

	c.logger.Debug("fetch: response",
		"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode,
		"redirected", res.Redirected, "size", len(body))
	return res, nil
}

// Get fetches u with the given Accept header.
func (c *Client) Get(ctx context.Context, u *url.URL, accept string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.Do(ctx, req)
}

// Cookie returns the value of the named cookie the jar would send to u.
func (c *Client) Cookie(u *url.URL, name string) (string, bool) {
	if c.http.Jar == nil || u == nil {
		return "", false
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// StatusForError maps a transport error to a synthetic status code.
func StatusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutFailure
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return TimeoutFailure
	}
	return NetworkFailure
}
