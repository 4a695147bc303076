package drive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/location"
)

// FormSubmissionState is the lifecycle position of a FormSubmission.
type FormSubmissionState int

const (
	FormInitialized FormSubmissionState = iota
	FormRequesting
	FormWaiting
	FormReceiving
	FormStopping
	FormStopped
)

func (s FormSubmissionState) String() string {
	switch s {
	case FormInitialized:
		return "initialized"
	case FormRequesting:
		return "requesting"
	case FormWaiting:
		return "waiting"
	case FormReceiving:
		return "receiving"
	case FormStopping:
		return "stopping"
	case FormStopped:
		return "stopped"
	}
	return fmt.Sprintf("FormSubmissionState(%d)", int(s))
}

// FormSubmissionResult is the outcome reported with the submit-end event.
type FormSubmissionResult struct {
	Success  bool
	Response *fetch.Response
	Err      error
}

// FormSubmissionDelegate hears how a submission went.
type FormSubmissionDelegate interface {
	FormSubmissionStarted(f *FormSubmission)
	FormSubmissionSucceededWithResponse(f *FormSubmission, resp *fetch.Response)
	FormSubmissionFailedWithResponse(f *FormSubmission, resp *fetch.Response)
	FormSubmissionErrored(f *FormSubmission, err error)
	FormSubmissionFinished(f *FormSubmission)
}

// FormEnv is what a submission needs from the session.
type FormEnv struct {
	Doc         *dom.Document
	Client      *fetch.Client
	Runner      fetch.Runner
	Interceptor fetch.Interceptor
	Events      *Events
}

// FormSubmission submits one form. Every method must be called on the loop
// goroutine.
type FormSubmission struct {
	Form      *html.Node
	Submitter *html.Node
	// Method is the method the form asked for; the request may tunnel it
	// through POST.
	Method       fetch.Method
	Enctype      Enctype
	Location     *url.URL
	Data         FormData
	Request      *fetch.Request
	MustRedirect bool

	delegate FormSubmissionDelegate
	env      FormEnv
	state    FormSubmissionState
	result   FormSubmissionResult

	originalSubmitText string
	swappedText        bool
}

// NewFormSubmission builds the request for submitting form with submitter.
func NewFormSubmission(d FormSubmissionDelegate, env FormEnv, form, submitter *html.Node, mustRedirect bool) (*FormSubmission, error) {
	f := &FormSubmission{
		Form:         form,
		Submitter:    submitter,
		MustRedirect: mustRedirect,
		delegate:     d,
		env:          env,
	}
	f.Method = formMethod(form, submitter)
	f.Enctype = formEnctype(form, submitter)

	loc, err := location.Expand(env.Doc.URL, formAction(form, submitter))
	if err != nil {
		return nil, fmt.Errorf("drive: form action: %w", err)
	}
	f.Location = loc
	f.Data = BuildFormData(form, submitter)

	method := f.Method
	data := f.Data
	if method != fetch.Get && method != fetch.Post {
		data = append(data[:len(data):len(data)], FormField{Name: "_method", Value: strings.ToLower(string(method))})
		method = fetch.Post
	}

	var body []byte
	contentType := ""
	if method == fetch.Get {
		f.Location.RawQuery = data.URLEncode()
	} else {
		body, contentType, err = data.Encode(f.Enctype)
		if err != nil {
			return nil, fmt.Errorf("drive: encode form: %w", err)
		}
	}

	f.Request = fetch.NewRequest(f, env.Client, env.Runner, method, f.Location, body, contentType)
	f.Request.Target = form
	if env.Interceptor != nil {
		f.Request.SetInterceptor(env.Interceptor)
	}
	return f, nil
}

// State returns the lifecycle state.
func (f *FormSubmission) State() FormSubmissionState { return f.state }

// Result returns the outcome once the request finished.
func (f *FormSubmission) Result() FormSubmissionResult { return f.result }

// IsSafe reports a GET submission.
func (f *FormSubmission) IsSafe() bool { return f.Request.IsSafe() }

// Start asks for confirmation when the form wants one, then sends the
// request. It reports whether the request was sent.
func (f *FormSubmission) Start(ctx context.Context) bool {
	if msg, ok := firstAttr(dom.AttrConfirm, f.Submitter, f.Form); ok {
		if !f.env.Events.confirm(msg, f.Form, f.Submitter) {
			return false
		}
	}
	if f.state != FormInitialized {
		return false
	}
	f.state = FormRequesting
	f.Request.Perform(ctx)
	return true
}

// Stop cancels the request. It reports whether the submission was still
// running.
func (f *FormSubmission) Stop() bool {
	if f.state == FormStopping || f.state == FormStopped {
		return false
	}
	f.state = FormStopping
	f.Request.Cancel()
	return true
}

// fetch.Delegate

func (f *FormSubmission) PrepareRequest(r *fetch.Request) {
	if !r.IsSafe() {
		if token := f.csrfToken(); token != "" {
			r.Header.Set("X-CSRF-Token", token)
		}
	}
	if f.acceptsStreamResponse(r) {
		r.AcceptResponseType(dom.StreamContentType)
	}
}

func (f *FormSubmission) RequestStarted(*fetch.Request) {
	f.state = FormWaiting
	if f.Submitter != nil {
		dom.SetAttr(f.Submitter, "disabled", "")
	}
	f.setSubmitsWith()
	f.env.Events.submitStart(f)
	f.delegate.FormSubmissionStarted(f)
}

func (f *FormSubmission) RequestPreventedHandlingResponse(_ *fetch.Request, resp *fetch.Response) {
	f.result = FormSubmissionResult{Success: resp.Succeeded(), Response: resp}
}

func (f *FormSubmission) RequestSucceededWithResponse(r *fetch.Request, resp *fetch.Response) {
	switch {
	case resp.ClientError() || resp.ServerError():
		f.delegate.FormSubmissionFailedWithResponse(f, resp)
	case f.requestMustRedirect(r) && resp.StatusCode == 200 && !resp.Redirected:
		f.result = FormSubmissionResult{Err: ErrMustRedirect}
		f.delegate.FormSubmissionErrored(f, ErrMustRedirect)
	default:
		f.state = FormReceiving
		f.result = FormSubmissionResult{Success: true, Response: resp}
		f.delegate.FormSubmissionSucceededWithResponse(f, resp)
	}
}

func (f *FormSubmission) RequestFailedWithResponse(_ *fetch.Request, resp *fetch.Response) {
	f.result = FormSubmissionResult{Response: resp}
	f.delegate.FormSubmissionFailedWithResponse(f, resp)
}

func (f *FormSubmission) RequestErrored(_ *fetch.Request, err error) {
	f.result = FormSubmissionResult{Err: err}
	f.delegate.FormSubmissionErrored(f, err)
}

func (f *FormSubmission) RequestFinished(*fetch.Request) {
	f.state = FormStopped
	if f.Submitter != nil {
		dom.RemoveAttr(f.Submitter, "disabled")
	}
	f.resetSubmitterText()
	f.env.Events.submitEnd(f, f.result)
	f.delegate.FormSubmissionFinished(f)
}

func (f *FormSubmission) requestMustRedirect(r *fetch.Request) bool {
	return !r.IsSafe() && f.MustRedirect
}

func (f *FormSubmission) acceptsStreamResponse(r *fetch.Request) bool {
	if !r.IsSafe() {
		return true
	}
	_, ok := firstAttr(dom.AttrStream, f.Submitter, f.Form)
	return ok
}

// csrfToken reads the cookie named by the csrf-param meta, falling back to
// the csrf-token meta.
func (f *FormSubmission) csrfToken() string {
	if param, ok := f.env.Doc.Meta(dom.MetaCSRFParam); ok && param != "" && f.env.Client != nil {
		if v, ok := f.env.Client.Cookie(f.Location, param); ok {
			if unescaped, err := url.QueryUnescape(v); err == nil {
				return unescaped
			}
			return v
		}
	}
	token, _ := f.env.Doc.Meta(dom.MetaCSRFToken)
	return token
}

func (f *FormSubmission) setSubmitsWith() {
	if f.Submitter == nil {
		return
	}
	with, ok := firstAttr(dom.AttrSubmitsWith, f.Submitter)
	if !ok || with == "" {
		return
	}
	switch f.Submitter.Data {
	case "button":
		f.originalSubmitText = dom.InnerHTML(f.Submitter)
		dom.RemoveChildren(f.Submitter)
		dom.Append(f.Submitter, &html.Node{Type: html.TextNode, Data: with})
		f.swappedText = true
	case "input":
		f.originalSubmitText = dom.Attr(f.Submitter, "value")
		dom.SetAttr(f.Submitter, "value", with)
		f.swappedText = true
	}
}

func (f *FormSubmission) resetSubmitterText() {
	if f.Submitter == nil || !f.swappedText {
		return
	}
	switch f.Submitter.Data {
	case "button":
		if err := dom.SetInnerHTML(f.Submitter, f.originalSubmitText); err != nil {
			dom.RemoveChildren(f.Submitter)
			dom.Append(f.Submitter, &html.Node{Type: html.TextNode, Data: f.originalSubmitText})
		}
	case "input":
		dom.SetAttr(f.Submitter, "value", f.originalSubmitText)
	}
	f.swappedText = false
}

func formMethod(form, submitter *html.Node) fetch.Method {
	raw := ""
	if submitter != nil && dom.HasAttr(submitter, "formmethod") {
		raw = dom.Attr(submitter, "formmethod")
	}
	if raw == "" {
		raw = dom.Attr(form, "method")
	}
	if m, ok := fetch.ParseMethod(raw); ok {
		return m
	}
	return fetch.Get
}

func formAction(form, submitter *html.Node) string {
	if submitter != nil && dom.HasAttr(submitter, "formaction") {
		return dom.Attr(submitter, "formaction")
	}
	return dom.Attr(form, "action")
}

func formEnctype(form, submitter *html.Node) Enctype {
	raw := ""
	if submitter != nil {
		raw = dom.Attr(submitter, "formenctype")
	}
	if raw == "" {
		raw = dom.Attr(form, "enctype")
	}
	return ParseEnctype(raw)
}

// firstAttr returns the attribute from the first element carrying it.
func firstAttr(name string, elements ...*html.Node) (string, bool) {
	for _, el := range elements {
		if el != nil && dom.HasAttr(el, name) {
			return dom.Attr(el, name), true
		}
	}
	return "", false
}
