package fetch

import (
	"mime"
	"net/http"
	"net/url"
	"sync"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Location   *url.URL
	Redirected bool

	body     []byte
	htmlOnce sync.Once
	html     string
	isHTML   bool
}

// NewResponse builds a response from parts, for preloaded or synthesized
// responses.
func NewResponse(status int, loc *url.URL, contentType string, body []byte, redirected bool) *Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{StatusCode: status, Header: h, Location: loc, Redirected: redirected, body: body}
}

// Succeeded reports a 2xx status.
func (r *Response) Succeeded() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

// Failed reports any non-2xx status.
func (r *Response) Failed() bool { return !r.Succeeded() }

// ClientError reports a 4xx status.
func (r *Response) ClientError() bool { return r.StatusCode >= 400 && r.StatusCode <= 499 }

// ServerError reports a 5xx status.
func (r *Response) ServerError() bool { return r.StatusCode >= 500 && r.StatusCode <= 599 }

// ContentType returns the media type without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// IsHTML reports an HTML or XHTML content type.
func (r *Response) IsHTML() bool {
	switch r.ContentType() {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// HTML returns the body as HTML, or false when the content type is not HTML.
func (r *Response) HTML() (string, bool) {
	r.htmlOnce.Do(func() {
		if r.IsHTML() {
			r.html = string(r.body)
			r.isHTML = true
		}
	})
	return r.html, r.isHTML
}

// Body returns the raw body.
func (r *Response) Body() []byte { return r.body }
