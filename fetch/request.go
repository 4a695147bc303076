package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Method is an HTTP verb the engine issues.
type Method string

const (
	Get    Method = http.MethodGet
	Post   Method = http.MethodPost
	Put    Method = http.MethodPut
	Patch  Method = http.MethodPatch
	Delete Method = http.MethodDelete
)

// ParseMethod maps a form method attribute to a Method.
func ParseMethod(s string) (Method, bool) {
	switch strings.ToLower(s) {
	case "get":
		return Get, true
	case "post":
		return Post, true
	case "put":
		return Put, true
	case "patch":
		return Patch, true
	case "delete":
		return Delete, true
	}
	return "", false
}

// DefaultAccept is the Accept header of every request unless extended.
const DefaultAccept = "text/html, application/xhtml+xml"

// Delegate receives the lifecycle of a Request. All calls happen on the
// loop goroutine.
type Delegate interface {
	PrepareRequest(r *Request)
	RequestStarted(r *Request)
	RequestPreventedHandlingResponse(r *Request, resp *Response)
	RequestSucceededWithResponse(r *Request, resp *Response)
	RequestFailedWithResponse(r *Request, resp *Response)
	RequestErrored(r *Request, err error)
	RequestFinished(r *Request)
}

// Interceptor is the application checkpoint around every request.
type Interceptor interface {
	// BeforeFetchRequest may adjust headers before the request is sent.
	BeforeFetchRequest(r *Request)
	// BeforeFetchResponse returns false to take over handling of resp.
	BeforeFetchResponse(r *Request, resp *Response) bool
	// FetchRequestError observes transport errors.
	FetchRequestError(r *Request, err error)
}

// Runner runs blocking work off the loop and posts its continuation back.
type Runner interface {
	Go(work func() func())
}

// Request is one engine-issued HTTP request.
type Request struct {
	Method      Method
	URL         *url.URL
	Header      http.Header
	Body        []byte
	ContentType string
	// Target is the element that caused the request, e.g. a form.
	Target *html.Node

	delegate    Delegate
	client      *Client
	runner      Runner
	interceptor Interceptor

	cancel   context.CancelFunc
	canceled bool
	started  bool
}

// NewRequest prepares a request. Safe methods never carry a body.
func NewRequest(d Delegate, c *Client, run Runner, method Method, u *url.URL, body []byte, contentType string) *Request {
	r := &Request{
		Method:   method,
		URL:      u,
		Header:   http.Header{"Accept": []string{DefaultAccept}},
		delegate: d,
		client:   c,
		runner:   run,
	}
	if !r.IsSafe() {
		r.Body = body
		r.ContentType = contentType
	}
	return r
}

// SetInterceptor installs the application checkpoints.
func (r *Request) SetInterceptor(i Interceptor) { r.interceptor = i }

// IsSafe reports a GET request.
func (r *Request) IsSafe() bool { return r.Method == Get }

// AcceptResponseType puts mimeType first in the Accept header.
func (r *Request) AcceptResponseType(mimeType string) {
	r.Header.Set("Accept", mimeType+", "+r.Header.Get("Accept"))
}

// Canceled reports whether Cancel was called.
func (r *Request) Canceled() bool { return r.canceled }

// Cancel aborts the request. The delegate only hears RequestFinished.
func (r *Request) Cancel() {
	r.canceled = true
	if r.cancel != nil {
		r.cancel()
	}
}

// Perform runs the lifecycle: prepare, interception, started, then the
// network round trip off the loop. It is a no-op on a second call.
func (r *Request) Perform(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)

	r.delegate.PrepareRequest(r)
	if r.interceptor != nil {
		r.interceptor.BeforeFetchRequest(r)
	}
	r.delegate.RequestStarted(r)

	if r.canceled {
		r.receive(nil, context.Canceled)
		return
	}
	req, err := r.httpRequest(ctx)
	if err != nil {
		r.receive(nil, err)
		return
	}
	r.runner.Go(func() func() {
		resp, err := r.client.Do(ctx, req)
		return func() { r.receive(resp, err) }
	})
}

func (r *Request) httpRequest(ctx context.Context) (*http.Request, error) {
	var body *bytes.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, string(r.Method), r.URL.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, string(r.Method), r.URL.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	return req, nil
}

func (r *Request) receive(resp *Response, err error) {
	defer func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.delegate.RequestFinished(r)
	}()

	if r.canceled || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		if r.interceptor != nil {
			r.interceptor.FetchRequestError(r, err)
		}
		r.delegate.RequestErrored(r, err)
		return
	}
	if r.interceptor != nil && !r.interceptor.BeforeFetchResponse(r, resp) {
		r.delegate.RequestPreventedHandlingResponse(r, resp)
		return
	}
	if resp.Succeeded() {
		r.delegate.RequestSucceededWithResponse(r, resp)
	} else {
		r.delegate.RequestFailedWithResponse(r, resp)
	}
}
